package events

import (
	"math/big"
	"testing"
)

type recordingEmitter struct {
	seen []string
}

func (r *recordingEmitter) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushAndDiscard(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(Transfer{Amount: big.NewInt(1)})
	buf.Emit(nil)
	if buf.Len() != 1 {
		t.Fatalf("expected one buffered event, got %d", buf.Len())
	}
	target := &recordingEmitter{}
	buf.Flush(target)
	if len(target.seen) != 1 || target.seen[0] != TypeTransfer {
		t.Fatalf("unexpected flushed events: %v", target.seen)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not cleared after flush")
	}

	buf.Emit(Transfer{})
	buf.Discard()
	buf.Flush(target)
	if len(target.seen) != 1 {
		t.Fatalf("discarded events must not be flushed")
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	a := &recordingEmitter{}
	b := &recordingEmitter{}
	Fanout{a, nil, b}.Emit(Transfer{})
	if len(a.seen) != 1 || len(b.seen) != 1 {
		t.Fatalf("expected both emitters to receive the event")
	}
}

func TestTransferPayload(t *testing.T) {
	from := [20]byte{1}
	to := [20]byte{2}
	evt := Transfer{From: from, To: to, Amount: big.NewInt(42), Reason: "escrow.refund"}.Event()
	if evt.Type != TypeTransfer {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["amount"] != "42" || evt.Attributes["reason"] != "escrow.refund" {
		t.Fatalf("unexpected attributes: %v", evt.Attributes)
	}
	if evt.Attributes["from"] == evt.Attributes["to"] {
		t.Fatalf("expected distinct addresses")
	}
}
