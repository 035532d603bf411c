package unpacker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const packerBody = `eval(function(p,a,c,k,e,d){e=function(c){return(c<a?'':e(parseInt(c/a)))+((c=c%a)>35?String.fromCharCode(c+29):c.toString(36))};while(c--){if(k[c]){p=p.replace(new RegExp('\\b'+e(c)+'\\b','g'),k[c])}}return p}`

// pack is a minimal encoder producing the same shape as the real packer.
func pack(src string, base int) string {
	var words []string
	index := map[string]int{}
	encoded := wordRe.ReplaceAllStringFunc(src, func(w string) string {
		i, ok := index[w]
		if !ok {
			i = len(words)
			index[w] = i
			words = append(words, w)
		}
		return Encode(i, base)
	})

	esc := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return fmt.Sprintf("%s('%s',%d,%d,'%s'.split('|'),0,{}))",
		packerBody, esc.Replace(encoded), base, len(words), esc.Replace(strings.Join(words, "|")))
}

func TestUnpack_Simple(t *testing.T) {
	script := packerBody + `('0 1=\'2://3.4/5.6\';',7,7,'var|src|https|cdn|example|master|m3u8'.split('|'),0,{}))`

	got, err := Unpack(script)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	want := `var src='https://cdn.example/master.m3u8';`
	if got != want {
		t.Errorf("Unpack() = %q, want %q", got, want)
	}
}

func TestUnpack_EmptyDictEntryKeepsToken(t *testing.T) {
	script := packerBody + `('0 1 2',10,3,'alpha||gamma'.split('|'),0,{}))`

	got, err := Unpack(script)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if got != "alpha 1 gamma" {
		t.Errorf("Unpack() = %q", got)
	}
}

func TestUnpack_RoundTrip(t *testing.T) {
	sources := []string{
		`jwplayer("vplayer").setup({sources:[{file:"https://be6721.rcr72.waw04.cdn/hls2/01/00001/abc_,l,n,h,.urlset/master.m3u8?t=XyZ&s=17"}],image:"https://img.cdn/x.jpg"});`,
		`var player=videojs('main');player.src({type:'application/x-mpegURL',src:'//cdn.example.net/v/123/index.m3u8'});`,
		`if(a_b==1){return c}else{return 'd\\e'}`,
	}
	for _, base := range []int{10, 36, 62} {
		for i, src := range sources {
			t.Run(fmt.Sprintf("base%d/%d", base, i), func(t *testing.T) {
				got, err := Unpack(pack(src, base))
				if err != nil {
					t.Fatalf("Unpack() error = %v", err)
				}
				if got != src {
					t.Errorf("round trip mismatch\n got: %s\nwant: %s", got, src)
				}
			})
		}
	}
}

func TestUnpack_ManyTokensBase62(t *testing.T) {
	var parts []string
	for i := 0; i < 200; i++ {
		parts = append(parts, fmt.Sprintf("tok%d", i))
	}
	src := strings.Join(parts, " ")

	got, err := Unpack(pack(src, 62))
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if got != src {
		t.Error("round trip mismatch for 200 tokens in base 62")
	}
}

func TestUnpack_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"plain script", `var x = 1;`},
		{"radix too large", packerBody + `('0',95,1,'x'.split('|'),0,{}))`},
		{"radix too small", packerBody + `('0',1,1,'x'.split('|'),0,{}))`},
		{"count far past dictionary", packerBody + `('0 1',36,300000000,'hello|world'.split('|'),0,{}))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := Unpack(tt.script); err == nil {
				t.Errorf("Unpack() = %q, want error", got)
			}
		})
	}
}

func TestUnpack_CountDictionaryMismatch(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "count slightly past dictionary",
			script: packerBody + `('0 1 2',10,5,'hello|world'.split('|'),0,{}))`,
			want:   "hello world 2",
		},
		{
			name:   "count short of dictionary",
			script: packerBody + `('0 1 2',10,2,'hello|world|extra'.split('|'),0,{}))`,
			want:   "hello world 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unpack(tt.script)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if got != tt.want {
				t.Errorf("Unpack() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnpack_HugeCountRejected(t *testing.T) {
	_, err := Unpack(packerBody + `('0 1',36,300000000,'hello|world'.split('|'),0,{}))`)
	if !errors.Is(err, ErrBadArgument) {
		t.Errorf("err = %v, want ErrBadArgument", err)
	}
}

func TestFind(t *testing.T) {
	script := packerBody + `('0',10,1,'hello'.split('|'),0,{}))`
	html := `<html><script type="text/javascript">` + script + `</script></html>`

	found := Find(html)
	if found == "" || !IsPacked(html) {
		t.Fatal("packed script not found")
	}
	got, err := Unpack(found)
	if err != nil || got != "hello" {
		t.Errorf("Unpack(Find()) = %q, %v", got, err)
	}
	if Find("<script>var a=1</script>") != "" {
		t.Error("Find() matched a plain script")
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		n, base int
		want    string
	}{
		{0, 36, "0"},
		{35, 36, "z"},
		{36, 36, "10"},
		{36, 62, "A"},
		{61, 62, "Z"},
		{62, 62, "10"},
		{255, 16, "ff"},
	}
	for _, tt := range tests {
		if got := Encode(tt.n, tt.base); got != tt.want {
			t.Errorf("Encode(%d, %d) = %q, want %q", tt.n, tt.base, got, tt.want)
		}
	}
}
