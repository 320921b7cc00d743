package language

import "testing"

func TestCatalogLookups(t *testing.T) {
	if got := Name("zh-HK"); got != "Cantonese" {
		t.Fatalf("zh-HK: got %q", got)
	}
	if got := Name("xx"); got != "xx" {
		t.Fatalf("unknown code should echo back, got %q", got)
	}
	if !Valid(Default) {
		t.Fatalf("default language must be in catalog")
	}
	if Valid("EN") {
		t.Fatalf("codes are case sensitive")
	}
}

func TestAllIsOrderedCopy(t *testing.T) {
	all := All()
	if len(all) != 64 {
		t.Fatalf("expected 64 languages, got %d", len(all))
	}
	if all[0].Code != "af" || all[len(all)-1].Code != "zh" {
		t.Fatalf("unexpected order: first=%s last=%s", all[0].Code, all[len(all)-1].Code)
	}
	all[0].Name = "changed"
	if Name("af") != "Afrikaans" {
		t.Fatalf("All must return a copy")
	}
}
