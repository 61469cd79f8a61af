package aio_test

import (
	"context"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/ringio/pkg/aio"
	"github.com/brickingsoft/rxp"
)

type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n = copy(p, f.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

func (f *memFile) WriteAt(p []byte, off int64) (n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if need := off + int64(len(p)); need > int64(len(f.data)) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
	}
	n = copy(f.data[off:], p)
	return
}

func (f *memFile) Sync() error { return nil }

type errFile struct {
	err error
}

func (f *errFile) ReadAt(_ []byte, _ int64) (int, error)  { return 0, f.err }
func (f *errFile) WriteAt(_ []byte, _ int64) (int, error) { return 0, f.err }

type pollFile struct {
	memFile
	ready chan struct{}
}

func (f *pollFile) Ready() <-chan struct{} { return f.ready }

func newRing(t *testing.T, options ...aio.Option) *aio.Ring {
	t.Helper()
	execs, execsErr := rxp.New()
	if execsErr != nil {
		t.Fatal(execsErr)
	}
	options = append(options, aio.WithExecutors(execs))
	ring, err := aio.New(options...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = ring.Close()
		_ = execs.Close()
	})
	return ring
}

func harvest(t *testing.T, ring *aio.Ring, n int) map[uint64][]aio.CompletionEntry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	dst := make([]aio.CompletionEntry, n)
	got := make(map[uint64][]aio.CompletionEntry, n)
	collected := 0
	for collected < n {
		k, err := ring.Enter(context.Background(), dst, uint32(n-collected), deadline)
		if err != nil && !aio.IsWouldBlock(err) {
			t.Fatalf("enter failed after %d of %d completions: %v", collected, n, err)
		}
		for _, entry := range dst[:k] {
			got[entry.UserData] = append(got[entry.UserData], entry)
		}
		collected += int(k)
	}
	return got
}

func one(t *testing.T, got map[uint64][]aio.CompletionEntry, tag uint64) aio.CompletionEntry {
	t.Helper()
	entries := got[tag]
	if len(entries) != 1 {
		t.Fatalf("tag %d: want one completion, got %d", tag, len(entries))
	}
	return entries[0]
}

func TestNop(t *testing.T) {
	ring := newRing(t)
	for _, tag := range []uint64{1, 2, 3} {
		if !ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpNop, UserData: tag}) {
			t.Fatal("enqueue failed")
		}
	}
	got := harvest(t, ring, 3)
	for _, tag := range []uint64{1, 2, 3} {
		if entry := one(t, got, tag); entry.Res != 0 {
			t.Errorf("tag %d: res = %d", tag, entry.Res)
		}
	}
}

func TestReadWrite(t *testing.T) {
	ring := newRing(t)
	file := &memFile{}
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpWrite, File: file, Buf: []byte("ring data"), UserData: 1,
	})
	got := harvest(t, ring, 1)
	if entry := one(t, got, 1); entry.Res != int32(len("ring data")) {
		t.Fatalf("write res = %d", entry.Res)
	}
	buf := make([]byte, 16)
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpRead, File: file, Buf: buf, UserData: 2,
	})
	got = harvest(t, ring, 1)
	entry := one(t, got, 2)
	if entry.Res != int32(len("ring data")) {
		t.Fatalf("read res = %d", entry.Res)
	}
	if string(buf[:entry.Res]) != "ring data" {
		t.Fatalf("read data = %q", buf[:entry.Res])
	}
}

func TestFsync(t *testing.T) {
	ring := newRing(t)
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpFsync, File: &memFile{}, UserData: 1})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != 0 {
		t.Errorf("fsync res = %d", entry.Res)
	}
}

func TestInvalidOpcodeDropped(t *testing.T) {
	ring := newRing(t)
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: 250, UserData: 1})
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpNop, UserData: 2})
	got := harvest(t, ring, 1)
	one(t, got, 2)
	if len(got[1]) != 0 {
		t.Error("invalid opcode produced a completion")
	}
	if ring.Dropped() != 1 {
		t.Errorf("dropped = %d", ring.Dropped())
	}
}

func TestSoftLinkFailureCancelsRemainder(t *testing.T) {
	ring := newRing(t)
	broken := &errFile{err: syscall.EIO}
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpRead, File: broken, Buf: make([]byte, 8), Flags: aio.EntryLink, UserData: 10},
		aio.SubmissionEntry{Opcode: aio.OpNop, UserData: 11},
	)
	got := harvest(t, ring, 2)
	if entry := one(t, got, 10); entry.Res != -int32(syscall.EIO) {
		t.Errorf("head res = %d", entry.Res)
	}
	if entry := one(t, got, 11); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("successor res = %d", entry.Res)
	}
}

func TestHardLinkSurvivesFailure(t *testing.T) {
	ring := newRing(t)
	broken := &errFile{err: syscall.EIO}
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpRead, File: broken, Buf: make([]byte, 8), Flags: aio.EntryHardLink, UserData: 20},
		aio.SubmissionEntry{Opcode: aio.OpNop, UserData: 21},
	)
	got := harvest(t, ring, 2)
	if entry := one(t, got, 20); entry.Res != -int32(syscall.EIO) {
		t.Errorf("head res = %d", entry.Res)
	}
	if entry := one(t, got, 21); entry.Res != 0 {
		t.Errorf("successor res = %d", entry.Res)
	}
}

func TestTimeout(t *testing.T) {
	ring := newRing(t)
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpTimeout, Timeout: 10 * time.Millisecond, UserData: 1})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != -int32(syscall.ETIME) {
		t.Errorf("timeout res = %d", entry.Res)
	}
}

func TestTimeoutRemove(t *testing.T) {
	ring := newRing(t)
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpTimeout, Timeout: 10 * time.Second, UserData: 7},
		aio.SubmissionEntry{Opcode: aio.OpTimeoutRemove, Target: 7, UserData: 8},
	)
	got := harvest(t, ring, 2)
	if entry := one(t, got, 7); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("timeout res = %d", entry.Res)
	}
	if entry := one(t, got, 8); entry.Res != 0 {
		t.Errorf("remove res = %d", entry.Res)
	}
}

func TestTimeoutRemoveMissing(t *testing.T) {
	ring := newRing(t)
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpTimeoutRemove, Target: 99, UserData: 1})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != -int32(syscall.ENOENT) {
		t.Errorf("remove res = %d", entry.Res)
	}
}

func TestAsyncCancelParkedRequest(t *testing.T) {
	ring := newRing(t)
	parked := &pollFile{ready: make(chan struct{})}
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8), UserData: 31},
		aio.SubmissionEntry{Opcode: aio.OpAsyncCancel, Target: 31, UserData: 32},
	)
	got := harvest(t, ring, 2)
	if entry := one(t, got, 31); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("cancelled res = %d", entry.Res)
	}
	if entry := one(t, got, 32); entry.Res != 1 {
		t.Errorf("cancel res = %d", entry.Res)
	}
}

func TestAsyncCancelMissing(t *testing.T) {
	ring := newRing(t)
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpAsyncCancel, Target: 404, UserData: 1})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != -int32(syscall.ENOENT) {
		t.Errorf("cancel res = %d", entry.Res)
	}
}

func TestCancelAPI(t *testing.T) {
	ring := newRing(t)
	parked := &pollFile{ready: make(chan struct{})}
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8), UserData: 41})
	deadline := time.Now().Add(time.Second)
	for {
		n, err := ring.Cancel(aio.CancelSelector{Kind: aio.CancelByUserData, UserData: 41}, false)
		if err == nil {
			if n != 1 {
				t.Fatalf("cancelled %d", n)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never became cancellable")
		}
		time.Sleep(time.Millisecond)
	}
	if entry := one(t, harvest(t, ring, 1), 41); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("res = %d", entry.Res)
	}
}

func TestPollOneshot(t *testing.T) {
	ring := newRing(t)
	file := &pollFile{ready: make(chan struct{}, 1)}
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpPollAdd, File: file, UserData: 1})
	file.ready <- struct{}{}
	entry := one(t, harvest(t, ring, 1), 1)
	if entry.Res != 1 {
		t.Errorf("poll res = %d", entry.Res)
	}
	if entry.More() {
		t.Error("oneshot poll promised more")
	}
}

func TestPollMultishot(t *testing.T) {
	ring := newRing(t)
	file := &pollFile{ready: make(chan struct{}, 8)}
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpPollAdd, OpFlags: aio.PollAddMulti, File: file, UserData: 5})
	for i := 0; i < 3; i++ {
		file.ready <- struct{}{}
	}
	dst := make([]aio.CompletionEntry, 4)
	collected := make([]aio.CompletionEntry, 0, 4)
	deadline := time.Now().Add(5 * time.Second)
	for len(collected) < 3 {
		n, err := ring.Enter(context.Background(), dst, uint32(3-len(collected)), deadline)
		if err != nil && !aio.IsWouldBlock(err) {
			t.Fatal(err)
		}
		collected = append(collected, dst[:n]...)
	}
	for i, entry := range collected {
		if entry.Res != 1 || !entry.More() {
			t.Fatalf("event %d: res = %d flags = %x", i, entry.Res, entry.Flags)
		}
	}
	if _, err := ring.Cancel(aio.CancelSelector{Kind: aio.CancelByUserData, UserData: 5}, false); err != nil {
		t.Fatal(err)
	}
	terminal := one(t, harvest(t, ring, 1), 5)
	if terminal.Res != -int32(syscall.ECANCELED) {
		t.Errorf("terminal res = %d", terminal.Res)
	}
	if terminal.More() {
		t.Error("terminal completion promised more")
	}
}

func TestLinkTimeoutFires(t *testing.T) {
	ring := newRing(t)
	parked := &pollFile{ready: make(chan struct{})}
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8), Flags: aio.EntryLink, UserData: 21},
		aio.SubmissionEntry{Opcode: aio.OpLinkTimeout, Timeout: 20 * time.Millisecond, UserData: 22},
	)
	got := harvest(t, ring, 2)
	if entry := one(t, got, 21); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("target res = %d", entry.Res)
	}
	if entry := one(t, got, 22); entry.Res != -int32(syscall.ETIME) {
		t.Errorf("timer res = %d", entry.Res)
	}
}

func TestLinkTimeoutDisarmed(t *testing.T) {
	ring := newRing(t)
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpNop, Flags: aio.EntryLink, UserData: 23},
		aio.SubmissionEntry{Opcode: aio.OpLinkTimeout, Timeout: 10 * time.Second, UserData: 24},
	)
	got := harvest(t, ring, 2)
	if entry := one(t, got, 23); entry.Res != 0 {
		t.Errorf("target res = %d", entry.Res)
	}
	if entry := one(t, got, 24); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("timer res = %d", entry.Res)
	}
}

func TestEntryDeadline(t *testing.T) {
	ring := newRing(t)
	parked := &pollFile{ready: make(chan struct{})}
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8),
		Timeout: 20 * time.Millisecond, UserData: 1,
	})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("res = %d", entry.Res)
	}
}

func TestSkipSuccess(t *testing.T) {
	ring := newRing(t)
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpNop, Flags: aio.EntrySkipSuccess, UserData: 1},
		aio.SubmissionEntry{Opcode: aio.OpNop, UserData: 2},
	)
	got := harvest(t, ring, 1)
	one(t, got, 2)
	if len(got[1]) != 0 {
		t.Error("suppressed completion was published")
	}
}

func TestDrainBarrier(t *testing.T) {
	ring := newRing(t)
	parked := &pollFile{ready: make(chan struct{})}
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8), UserData: 1},
		aio.SubmissionEntry{Opcode: aio.OpNop, Flags: aio.EntryDrain, UserData: 2},
	)
	time.Sleep(50 * time.Millisecond)
	if n := ring.PeekCompletions(make([]aio.CompletionEntry, 4)); n != 0 {
		t.Fatalf("barrier leaked %d completions", n)
	}
	if _, err := ring.Cancel(aio.CancelSelector{Kind: aio.CancelByUserData, UserData: 1}, false); err != nil {
		t.Fatal(err)
	}
	got := harvest(t, ring, 2)
	one(t, got, 1)
	if entry := one(t, got, 2); entry.Res != 0 {
		t.Errorf("barrier entry res = %d", entry.Res)
	}
}

func TestCQOverflowLossless(t *testing.T) {
	ring := newRing(t, aio.WithCQEntries(2))
	const total = 6
	for tag := uint64(1); tag <= total; tag++ {
		if !ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpNop, UserData: tag}) {
			t.Fatal("enqueue failed")
		}
	}
	got := harvest(t, ring, total)
	for tag := uint64(1); tag <= total; tag++ {
		if entry := one(t, got, tag); entry.Res != 0 {
			t.Errorf("tag %d: res = %d", tag, entry.Res)
		}
	}
}

func TestFixedFile(t *testing.T) {
	ring := newRing(t)
	file := &memFile{data: []byte("fixed file data")}
	index, err := ring.RegisterFile(file)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 32)
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpRead, Flags: aio.EntryFixedFile, Fd: int32(index), Buf: buf, UserData: 1,
	})
	entry := one(t, harvest(t, ring, 1), 1)
	if string(buf[:entry.Res]) != "fixed file data" {
		t.Fatalf("read %q", buf[:entry.Res])
	}
	if _, err = ring.UnregisterFile(index); err != nil {
		t.Fatal(err)
	}
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpRead, Flags: aio.EntryFixedFile, Fd: int32(index), Buf: buf, UserData: 2,
	})
	if entry = one(t, harvest(t, ring, 1), 2); entry.Res >= 0 {
		t.Errorf("stale index res = %d", entry.Res)
	}
}

func TestFixedBuffer(t *testing.T) {
	ring := newRing(t)
	buf := make([]byte, 32)
	index, err := ring.RegisterBuffer(buf)
	if err != nil {
		t.Fatal(err)
	}
	file := &memFile{data: []byte("registered buffer")}
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpReadFixed, File: file, BufIndex: uint16(index), UserData: 1,
	})
	entry := one(t, harvest(t, ring, 1), 1)
	if string(buf[:entry.Res]) != "registered buffer" {
		t.Fatalf("read %q", buf[:entry.Res])
	}
}

func TestBufferSelect(t *testing.T) {
	ring := newRing(t)
	for i := 0; i < 2; i++ {
		if _, err := ring.RegisterBuffer(make([]byte, 32)); err != nil {
			t.Fatal(err)
		}
	}
	file := &memFile{data: []byte("selected")}
	ring.TryEnqueue(aio.SubmissionEntry{
		Opcode: aio.OpRead, Flags: aio.EntryBufferSelect, File: file, UserData: 1,
	})
	entry := one(t, harvest(t, ring, 1), 1)
	if entry.Res < 0 {
		t.Fatalf("res = %d", entry.Res)
	}
	if _, ok := entry.BufferId(); !ok {
		t.Fatal("no buffer id on buffer-select completion")
	}
}

func TestEnterWouldBlock(t *testing.T) {
	ring := newRing(t)
	_, err := ring.Enter(context.Background(), make([]aio.CompletionEntry, 4), 0, time.Time{})
	if !aio.IsWouldBlock(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestWaitCompletionsDeadline(t *testing.T) {
	ring := newRing(t)
	err := ring.WaitCompletions(context.Background(), 1, time.Now().Add(20*time.Millisecond))
	if !aio.IsTimeout(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestCloseCancelsInflight(t *testing.T) {
	execs, execsErr := rxp.New()
	if execsErr != nil {
		t.Fatal(execsErr)
	}
	ring, err := aio.New(aio.WithExecutors(execs))
	if err != nil {
		t.Fatal(err)
	}
	parked := &pollFile{ready: make(chan struct{})}
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8), UserData: 1})
	time.Sleep(20 * time.Millisecond)
	if closeErr := ring.Close(); closeErr != nil {
		t.Fatal(closeErr)
	}
	if ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpNop, UserData: 2}) {
		t.Error("enqueue succeeded after close")
	}
	_ = execs.Close()
}

func TestChainRejectsSecondLinkTimeout(t *testing.T) {
	ring := newRing(t)
	ring.Enqueue(
		aio.SubmissionEntry{Opcode: aio.OpNop, Flags: aio.EntryLink, UserData: 1},
		aio.SubmissionEntry{Opcode: aio.OpLinkTimeout, Flags: aio.EntryLink, Timeout: 10 * time.Second, UserData: 2},
		aio.SubmissionEntry{Opcode: aio.OpLinkTimeout, Timeout: 10 * time.Second, UserData: 3},
	)
	got := harvest(t, ring, 3)
	if entry := one(t, got, 1); entry.Res != 0 {
		t.Errorf("target res = %d", entry.Res)
	}
	if entry := one(t, got, 2); entry.Res != -int32(syscall.ECANCELED) {
		t.Errorf("companion res = %d", entry.Res)
	}
	if entry := one(t, got, 3); entry.Res != -int32(syscall.EINVAL) {
		t.Errorf("duplicate companion res = %d", entry.Res)
	}
}

func TestAsyncPollWaitsForReadiness(t *testing.T) {
	ring := newRing(t)
	file := &pollFile{ready: make(chan struct{}, 1)}
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpPollAdd, Flags: aio.EntryAsync, File: file, UserData: 1})
	time.Sleep(50 * time.Millisecond)
	if n := ring.PeekCompletions(make([]aio.CompletionEntry, 4)); n != 0 {
		t.Fatalf("poll completed before readiness, n = %d", n)
	}
	file.ready <- struct{}{}
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != 1 {
		t.Errorf("poll res = %d", entry.Res)
	}
}

func TestAsyncTimeoutFiresAtDeadline(t *testing.T) {
	ring := newRing(t)
	start := time.Now()
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpTimeout, Flags: aio.EntryAsync, Timeout: 20 * time.Millisecond, UserData: 1})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != -int32(syscall.ETIME) {
		t.Errorf("timeout res = %d", entry.Res)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("fired after %v", elapsed)
	}
}

func TestCancelRacesSubmission(t *testing.T) {
	ring := newRing(t)
	for i := 0; i < 50; i++ {
		tag := uint64(100 + i)
		parked := &pollFile{ready: make(chan struct{})}
		ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpRead, File: parked, Buf: make([]byte, 8), UserData: tag})
		deadline := time.Now().Add(time.Second)
		for {
			if _, err := ring.Cancel(aio.CancelSelector{Kind: aio.CancelByUserData, UserData: tag}, false); err == nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("round %d: request never became cancellable", i)
			}
		}
		if entry := one(t, harvest(t, ring, 1), tag); entry.Res != -int32(syscall.ECANCELED) {
			t.Fatalf("round %d: res = %d", i, entry.Res)
		}
	}
}

func TestReadWithoutBuffer(t *testing.T) {
	ring := newRing(t)
	ring.TryEnqueue(aio.SubmissionEntry{Opcode: aio.OpRead, File: &memFile{}, UserData: 1})
	if entry := one(t, harvest(t, ring, 1), 1); entry.Res != -int32(syscall.EINVAL) {
		t.Errorf("res = %d", entry.Res)
	}
}
