package types

import "testing"

func TestEventAssetID(t *testing.T) {
	evt := &Event{Type: "escrow.listed", Attributes: map[string]string{AttributeAssetID: "7"}}
	id, ok := evt.AssetID()
	if !ok || id != 7 {
		t.Fatalf("expected asset 7, got %d (%v)", id, ok)
	}

	for _, evt := range []*Event{
		nil,
		{Type: "transfer.native"},
		{Type: "escrow.listed", Attributes: map[string]string{AttributeAssetID: "seven"}},
	} {
		if _, ok := evt.AssetID(); ok {
			t.Fatalf("expected no asset id for %+v", evt)
		}
	}
}
