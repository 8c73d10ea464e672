package client

import "testing"

func TestOutboxFIFO(t *testing.T) {
	o := NewOutbox()
	c1 := o.Enqueue("conv_1", "first", "plain", nil)
	c2 := o.Enqueue("conv_1", "second", "plain", nil)
	c3 := o.Enqueue("conv_2", "third", "plain", nil)

	pending := o.Pending()
	if len(pending) != 3 {
		t.Fatalf("got %d pending, want 3", len(pending))
	}
	if pending[0].CID != c1 || pending[1].CID != c2 || pending[2].CID != c3 {
		t.Fatal("replay order must match enqueue order")
	}
}

func TestOutboxConfirmIsOnce(t *testing.T) {
	o := NewOutbox()
	cid := o.Enqueue("conv_1", "hi", "plain", nil)

	if !o.Confirm(cid) {
		t.Fatal("first confirm must report outstanding")
	}
	if o.Confirm(cid) {
		t.Fatal("second confirm must report duplicate")
	}
	if o.Confirm("not-a-cid") {
		t.Fatal("unknown cid must not confirm")
	}

	if got := o.Pending(); len(got) != 0 {
		t.Fatalf("confirmed message still pending: %+v", got)
	}
}

func TestOutboxFailAndRequeue(t *testing.T) {
	o := NewOutbox()
	cid := o.Enqueue("conv_1", "hi", "plain", nil)

	_ = o.Pending() // marks sending
	o.Requeue(cid)
	if got := o.Pending(); len(got) != 1 {
		t.Fatalf("requeued message missing: %+v", got)
	}

	o.Fail(cid, "closed")
	if got := o.Pending(); len(got) != 0 {
		t.Fatalf("failed message still pending: %+v", got)
	}
	qm, ok := o.Get(cid)
	if !ok || qm.Status != StatusFailed || qm.Error != "closed" {
		t.Fatalf("failure not recorded: %+v", qm)
	}
}

func TestOutboxCompact(t *testing.T) {
	o := NewOutbox()
	keep := o.Enqueue("conv_1", "keep", "plain", nil)
	drop := o.Enqueue("conv_1", "drop", "plain", nil)
	o.Confirm(drop)

	o.Compact()
	if o.Len() != 1 {
		t.Fatalf("len=%d after compact, want 1", o.Len())
	}
	if _, ok := o.Get(keep); !ok {
		t.Fatal("unconfirmed entry lost in compact")
	}
}

func TestOutboxResetSending(t *testing.T) {
	o := NewOutbox()
	cid := o.Enqueue("conv_1", "hi", "plain", nil)

	if got := o.Pending(); len(got) != 1 {
		t.Fatalf("pending=%d, want 1", len(got))
	}
	// in-flight entries are not handed out again on the same session
	if got := o.Pending(); len(got) != 0 {
		t.Fatalf("in-flight entry handed out twice: %+v", got)
	}

	o.ResetSending()
	got := o.Pending()
	if len(got) != 1 || got[0].CID != cid {
		t.Fatalf("reset entry not pending again: %+v", got)
	}
}
