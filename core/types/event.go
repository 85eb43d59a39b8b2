package types

import "strconv"

// AttributeAssetID is the attribute key carrying the listing id an escrow or
// deed event refers to.
const AttributeAssetID = "assetId"

// Event is a typed escrow or deed event emitted during a committed call.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// AssetID returns the listing id the event refers to, if it names one.
func (e *Event) AssetID() (uint64, bool) {
	if e == nil {
		return 0, false
	}
	raw, ok := e.Attributes[AttributeAssetID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
