package main

import (
	"bytes"
	"log"
	"strconv"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/funny-falcon/slotpool/pool"
)

var jsonConfig = jsoniter.Config{
	OnlyTaggedField: true,
	CaseSensitive:   true,
}.Froze()

var (
	acquirePath   = []byte("/acquire")
	statsPath     = []byte("/stats")
	heldPath      = []byte("/held")
	releasePrefix = []byte("/release/")
	slotsPrefix   = []byte("/slots/")
)

type Stats struct {
	Capacity  uint32 `json:"capacity"`
	Allocated uint32 `json:"allocated"`
	Hint      uint32 `json:"hint"`
	SlotSize  uint32 `json:"slotSize"`
	Bytes     int    `json:"bytes"`
	Human     string `json:"human"`
}

// Server leases pool slots over HTTP. A client that acquired a slot owns its
// payload until it releases it; the server does not serialise payload access
// between clients.
type Server struct {
	Pool *pool.Pool
}

func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := ctx.Path()
	switch {
	case bytes.Equal(path, acquirePath):
		if !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
		s.doAcquire(ctx)
	case bytes.Equal(path, statsPath):
		if !ctx.IsGet() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
		s.doStats(ctx)
	case bytes.Equal(path, heldPath):
		if !ctx.IsGet() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
		s.doHeld(ctx)
	case bytes.HasPrefix(path, releasePrefix):
		if !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
		idx, ok := s.parseIndex(path[len(releasePrefix):])
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "bad slot index")
			return
		}
		s.doRelease(ctx, idx)
	case bytes.HasPrefix(path, slotsPrefix):
		idx, ok := s.parseIndex(path[len(slotsPrefix):])
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "bad slot index")
			return
		}
		switch {
		case ctx.IsGet():
			s.doRead(ctx, idx)
		case ctx.IsPut():
			s.doWrite(ctx, idx)
		default:
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		}
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) parseIndex(b []byte) (uint32, bool) {
	idx, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil || uint32(idx) >= s.Pool.Cap() {
		return 0, false
	}
	return uint32(idx), true
}

func (s *Server) doAcquire(ctx *fasthttp.RequestCtx) {
	idx := s.Pool.Acquire()
	if idx == s.Pool.Cap() {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "pool exhausted")
		return
	}
	stream := jsonConfig.BorrowStream(nil)
	stream.WriteObjectStart()
	stream.WriteObjectField("index")
	stream.WriteUint32(idx)
	stream.WriteObjectEnd()
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}

// doRelease refuses slots whose bit is clear. Two clients releasing the same
// slot at once can still both pass the check; this is a guard against stale
// clients, not double-free detection.
func (s *Server) doRelease(ctx *fasthttp.RequestCtx, idx uint32) {
	if !s.Pool.InUse(idx) {
		log.Printf("release of free slot %d from %s", idx, ctx.RemoteAddr())
		writeError(ctx, fasthttp.StatusConflict, "slot not held")
		return
	}
	s.Pool.Release(idx)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) doRead(ctx *fasthttp.RequestCtx, idx uint32) {
	if !s.Pool.InUse(idx) {
		writeError(ctx, fasthttp.StatusConflict, "slot not held")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/octet-stream")
	ctx.SetBody(s.Pool.Slot(idx))
}

func (s *Server) doWrite(ctx *fasthttp.RequestCtx, idx uint32) {
	if !s.Pool.InUse(idx) {
		writeError(ctx, fasthttp.StatusConflict, "slot not held")
		return
	}
	body := ctx.PostBody()
	if len(body) > int(s.Pool.SlotSize()) {
		writeError(ctx, fasthttp.StatusRequestEntityTooLarge, "body exceeds slot size")
		return
	}
	slot := s.Pool.Slot(idx)
	n := copy(slot, body)
	clear(slot[n:])
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) Stats() Stats {
	n := len(s.Pool.Bytes())
	return Stats{
		Capacity:  s.Pool.Cap(),
		Allocated: s.Pool.Allocated(),
		Hint:      s.Pool.Hint(),
		SlotSize:  s.Pool.SlotSize(),
		Bytes:     n,
		Human:     humanize.IBytes(uint64(n)),
	}
}

func (s *Server) doStats(ctx *fasthttp.RequestCtx) {
	stream := jsonConfig.BorrowStream(nil)
	stream.WriteVal(s.Stats())
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}

func (s *Server) doHeld(ctx *fasthttp.RequestCtx) {
	stream := jsonConfig.BorrowStream(nil)
	stream.Write([]byte(`{"held":[`))
	first := true
	s.Pool.Each(func(idx uint32) bool {
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteUint32(idx)
		return true
	})
	stream.Write([]byte(`]}`))
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}

func writeError(ctx *fasthttp.RequestCtx, code int, msg string) {
	stream := jsonConfig.BorrowStream(nil)
	stream.WriteObjectStart()
	stream.WriteObjectField("error")
	stream.WriteString(msg)
	stream.WriteObjectEnd()
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(stream.Buffer())
	jsonConfig.ReturnStream(stream)
}
