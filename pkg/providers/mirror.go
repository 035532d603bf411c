package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

// MirrorClient lists the embed and download servers a mirror offers for an
// episode.
type MirrorClient struct {
	baseURL string
	client  interfaces.HTTPClient
	log     *logging.Logger
}

var _ interfaces.MirrorProvider = (*MirrorClient)(nil)

// NewMirrorClient creates a client for the catalog rooted at baseURL.
func NewMirrorClient(baseURL string, client interfaces.HTTPClient, log *logging.Logger) *MirrorClient {
	return &MirrorClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     log.WithComponent("mirror-provider"),
	}
}

type mirrorResponse struct {
	Servers []types.Server `json:"servers"`
}

// Servers returns the mirror's server list in catalog order.
func (c *MirrorClient) Servers(ctx context.Context, episodeID, category string) ([]types.Server, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: mirror provider not configured", types.ErrUpstream)
	}

	endpoint := c.baseURL + "/servers/" + url.PathEscape(episodeID) + "?" + url.Values{"category": {category}}.Encode()

	var resp mirrorResponse
	if err := getJSON(ctx, c.client, endpoint, &resp); err != nil {
		c.log.WithError(err).Warn("mirror lookup failed", "episode", episodeID)
		return nil, err
	}

	servers := make([]types.Server, 0, len(resp.Servers))
	for _, s := range resp.Servers {
		if s.URL == "" {
			continue
		}
		if s.Type == "" {
			s.Type = types.ServerTypeEmbed
		}
		servers = append(servers, s)
	}
	c.log.Debug("mirror servers", "episode", episodeID, "count", len(servers))
	return servers, nil
}
