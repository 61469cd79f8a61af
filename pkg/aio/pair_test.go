package aio

import (
	"testing"
)

func TestRingPairRoundsCapacities(t *testing.T) {
	pair, err := newRingPair(100, 300, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := pair.sq.capacity(); got != 128 {
		t.Errorf("sq capacity = %d", got)
	}
	if got := pair.cq.capacity(); got != 512 {
		t.Errorf("cq capacity = %d", got)
	}
}

func TestSubmissionRingWraps(t *testing.T) {
	pair, _ := newRingPair(4, 8, false)
	sq := &pair.sq
	batch := make([]SubmissionEntry, 4)
	for round := 0; round < 5; round++ {
		for i := uint64(0); i < 4; i++ {
			if !sq.tryEnqueue(SubmissionEntry{UserData: uint64(round)*10 + i}) {
				t.Fatalf("round %d: enqueue %d failed", round, i)
			}
		}
		if sq.tryEnqueue(SubmissionEntry{UserData: 999}) {
			t.Fatalf("round %d: enqueue into full ring succeeded", round)
		}
		n := sq.dequeueBatch(batch)
		if n != 4 {
			t.Fatalf("round %d: dequeued %d", round, n)
		}
		for i := uint64(0); i < 4; i++ {
			if batch[i].UserData != uint64(round)*10+i {
				t.Fatalf("round %d: entry %d = %d", round, i, batch[i].UserData)
			}
		}
	}
}

func TestCompletionRingPublishDrain(t *testing.T) {
	pair, _ := newRingPair(4, 4, false)
	cq := &pair.cq
	for i := int32(0); i < 4; i++ {
		if !cq.tryPublish(CompletionEntry{Res: i}) {
			t.Fatalf("publish %d failed", i)
		}
	}
	if cq.tryPublish(CompletionEntry{Res: 99}) {
		t.Fatal("publish into full ring succeeded")
	}
	dst := make([]CompletionEntry, 4)
	if n := cq.drain(dst); n != 4 {
		t.Fatalf("drained %d", n)
	}
	for i := int32(0); i < 4; i++ {
		if dst[i].Res != i {
			t.Errorf("entry %d = %d", i, dst[i].Res)
		}
	}
	if n := cq.drain(dst); n != 0 {
		t.Errorf("empty drain returned %d", n)
	}
}

func TestPairFlags(t *testing.T) {
	pair, _ := newRingPair(4, 4, false)
	pair.setFlag(ringNeedsWakeup)
	if !pair.hasFlag(ringNeedsWakeup) {
		t.Error("flag not set")
	}
	pair.setFlag(ringCQOverflow)
	pair.clearFlag(ringNeedsWakeup)
	if pair.hasFlag(ringNeedsWakeup) {
		t.Error("flag not cleared")
	}
	if !pair.hasFlag(ringCQOverflow) {
		t.Error("clear touched the other flag")
	}
}

func TestRoundupPow2(t *testing.T) {
	cases := [][2]uint32{{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {127, 128}, {128, 128}, {129, 256}}
	for _, c := range cases {
		if got := RoundupPow2(c[0]); got != c[1] {
			t.Errorf("RoundupPow2(%d) = %d, want %d", c[0], got, c[1])
		}
	}
}
