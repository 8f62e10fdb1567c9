package wasm

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/vfs"
)

// read_file status codes.
const (
	statusOK uint32 = iota
	statusNotFound
	statusOutOfRange
	statusFailed
)

// blockChunk bounds the host-side copy made by one block_read call.
const blockChunk = 64 << 10

type stateKey struct{}

// guestState is everything the host functions see during one run.
type guestState struct {
	env interp.Environment
	out interp.Output

	mu      sync.Mutex
	blocks  []*interp.SourceBlock
	sources int
	lastErr error

	errMsg   string
	hasErr   bool
	position *interp.Position
	frames   []string
	words    map[string]struct{}
}

func newGuestState(env interp.Environment, out interp.Output) *guestState {
	return &guestState{env: env, out: out, words: make(map[string]struct{})}
}

func stateFrom(ctx context.Context) *guestState {
	st, _ := ctx.Value(stateKey{}).(*guestState)
	return st
}

// addSource registers a block the guest runs at startup.
func (s *guestState) addSource(b *interp.SourceBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
	s.sources++
}

func (s *guestState) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *guestState) readFile(name string, offset uint64, length uint32) ([]byte, uint32) {
	data, err := s.env.ReadFilePart(name, offset, uint64(length))
	switch {
	case err == nil:
		return data, statusOK
	case errors.Is(err, vfs.ErrNotFound):
		s.fail(err)
		return nil, statusNotFound
	case errors.Is(err, vfs.ErrOutOfRange):
		s.fail(err)
		return nil, statusOutOfRange
	default:
		s.fail(err)
		return nil, statusFailed
	}
}

func (s *guestState) fileSize(name string) int64 {
	data, err := s.env.ReadFile(name)
	if err != nil {
		return -1
	}
	return int64(len(data))
}

func (s *guestState) include(name string) int32 {
	b, err := s.env.Include(name)
	if err != nil {
		s.fail(err)
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
	return int32(len(s.blocks) - 1)
}

func (s *guestState) block(id uint32) *interp.SourceBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.blocks) {
		return nil
	}
	return s.blocks[id]
}

// readBlock returns the next unread bytes of block id, at most capacity and
// never more than blockChunk.
func (s *guestState) readBlock(id, capacity uint32) ([]byte, bool) {
	blk := s.block(id)
	if blk == nil {
		return nil, false
	}
	n := min(int64(capacity), int64(blk.Remaining()), blockChunk)
	chunk := make([]byte, n)
	read, _ := blk.Read(chunk)
	return chunk[:read], true
}

// reportError records the guest's failure. An empty message stands for the
// last error a host call produced.
func (s *guestState) reportError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" && s.lastErr != nil {
		msg = s.lastErr.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	s.errMsg = msg
	s.hasErr = true
}

func (s *guestState) reportPosition(p interp.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = &p
}

func (s *guestState) reportFrame(dump string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, dump)
}

func (s *guestState) reportWord(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[name] = struct{}{}
}

func (s *guestState) wordList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.words))
	for name := range s.words {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// instantiateHost registers the fift_env functions. They find the current
// run's state through the call context.
func instantiateHost(ctx context.Context, rt wazero.Runtime) error {
	b := rt.NewHostModuleBuilder(HostModuleName)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) uint64 {
		if st := stateFrom(ctx); st != nil {
			return st.env.NowMs()
		}
		return 0
	}).Export("now_ms")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, namePtr, nameLen uint32) uint32 {
		st := stateFrom(ctx)
		name, ok := readString(m, namePtr, nameLen)
		if st == nil || !ok || !st.env.FileExists(name) {
			return 0
		}
		return 1
	}).Export("file_exists")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, namePtr, nameLen uint32) int64 {
		st := stateFrom(ctx)
		name, ok := readString(m, namePtr, nameLen)
		if st == nil || !ok {
			return -1
		}
		return st.fileSize(name)
	}).Export("file_size")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, namePtr, nameLen uint32, offset uint64, length, buf uint32) uint32 {
		st := stateFrom(ctx)
		name, ok := readString(m, namePtr, nameLen)
		if st == nil || !ok {
			return statusFailed
		}
		data, status := st.readFile(name, offset, length)
		if status != statusOK {
			return status
		}
		if !m.Memory().Write(buf, data) {
			return statusFailed
		}
		return statusOK
	}).Export("read_file")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, namePtr, nameLen, dataPtr, dataLen uint32) uint32 {
		st := stateFrom(ctx)
		name, ok := readString(m, namePtr, nameLen)
		if st == nil || !ok {
			return statusFailed
		}
		data, ok := m.Memory().Read(dataPtr, dataLen)
		if !ok {
			return statusFailed
		}
		if err := st.env.WriteFile(name, data); err != nil {
			st.fail(err)
			return statusFailed
		}
		return statusOK
	}).Export("write_file")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, namePtr, nameLen uint32) int32 {
		st := stateFrom(ctx)
		name, ok := readString(m, namePtr, nameLen)
		if st == nil || !ok {
			return -1
		}
		return st.include(name)
	}).Export("include")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, id uint32) int64 {
		st := stateFrom(ctx)
		if st == nil {
			return -1
		}
		blk := st.block(id)
		if blk == nil {
			return -1
		}
		return int64(blk.Len())
	}).Export("block_size")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, id, buf, capacity uint32) int32 {
		st := stateFrom(ctx)
		if st == nil {
			return -1
		}
		chunk, ok := st.readBlock(id, capacity)
		if !ok || !m.Memory().Write(buf, chunk) {
			return -1
		}
		return int32(len(chunk))
	}).Export("block_read")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int32 {
		st := stateFrom(ctx)
		if st == nil {
			return 0
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		return int32(st.sources)
	}).Export("source_blocks")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, msgPtr, msgLen uint32) {
		if st := stateFrom(ctx); st != nil {
			msg, _ := readString(m, msgPtr, msgLen)
			st.reportError(msg)
		}
	}).Export("report_error")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, offset uint64, namePtr, nameLen, linePtr, lineLen, lineNo, wordStart, wordEnd uint32) {
		st := stateFrom(ctx)
		if st == nil {
			return
		}
		name, _ := readString(m, namePtr, nameLen)
		line, _ := readString(m, linePtr, lineLen)
		st.reportPosition(interp.Position{
			Offset:     int(offset),
			BlockName:  name,
			Line:       line,
			LineNumber: int(lineNo),
			WordStart:  int(wordStart),
			WordEnd:    int(wordEnd),
		})
	}).Export("report_position")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, n uint32) {
		if st := stateFrom(ctx); st != nil {
			dump, _ := readString(m, ptr, n)
			st.reportFrame(dump)
		}
	}).Export("report_frame")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, n uint32) {
		if st := stateFrom(ctx); st != nil {
			if name, ok := readString(m, ptr, n); ok && name != "" {
				st.reportWord(name)
			}
		}
	}).Export("report_word")

	_, err := b.Instantiate(ctx)
	return err
}

// readString copies a string out of guest memory.
func readString(m api.Module, ptr, n uint32) (string, bool) {
	mem := m.Memory()
	if mem == nil {
		return "", false
	}
	data, ok := mem.Read(ptr, n)
	if !ok {
		return "", false
	}
	return string(data), true
}
