package spatial

import (
	"errors"
	"sync"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

var ErrStereoUnsupported = errors.New("stereo panning unsupported")

// Node is one voice in the output audio graph.
type Node interface {
	SetStream(s transport.Stream)
	SetGains(left, right float64)
	Close()
}

// Renderer builds audio graph nodes. NewPanner may fail on platforms without stereo
// panning; NewGain is the volume-only fallback.
type Renderer interface {
	NewPanner(id domain.ParticipantID) (Node, error)
	NewGain(id domain.ParticipantID) (Node, error)
	SetOutputDevice(deviceID string) error
}

// HeadlessRenderer keeps node state in memory. It backs the command line client,
// which has no audio output, and tests.
type HeadlessRenderer struct {
	stereo bool

	mu     sync.Mutex
	nodes  map[domain.ParticipantID]*HeadlessNode
	output string
}

func NewHeadlessRenderer(stereo bool) *HeadlessRenderer {
	return &HeadlessRenderer{
		stereo: stereo,
		nodes:  make(map[domain.ParticipantID]*HeadlessNode),
	}
}

func (r *HeadlessRenderer) NewPanner(id domain.ParticipantID) (Node, error) {
	if !r.stereo {
		return nil, ErrStereoUnsupported
	}
	return r.add(id, true), nil
}

func (r *HeadlessRenderer) NewGain(id domain.ParticipantID) (Node, error) {
	return r.add(id, false), nil
}

func (r *HeadlessRenderer) SetOutputDevice(deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output = deviceID
	return nil
}

func (r *HeadlessRenderer) OutputDevice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}

// Node returns the live node for id, if any.
func (r *HeadlessRenderer) Node(id domain.ParticipantID) (*HeadlessNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	return n, ok
}

func (r *HeadlessRenderer) add(id domain.ParticipantID, stereo bool) *HeadlessNode {
	n := &HeadlessNode{Stereo: stereo, release: func(n *HeadlessNode) {
		r.mu.Lock()
		if r.nodes[id] == n {
			delete(r.nodes, id)
		}
		r.mu.Unlock()
	}}
	r.mu.Lock()
	r.nodes[id] = n
	r.mu.Unlock()
	return n
}

type HeadlessNode struct {
	Stereo bool

	mu          sync.Mutex
	stream      transport.Stream
	left, right float64
	closed      bool
	release     func(*HeadlessNode)
}

func (n *HeadlessNode) SetStream(s transport.Stream) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stream = s
}

func (n *HeadlessNode) SetGains(left, right float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.left, n.right = left, right
}

func (n *HeadlessNode) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()
	n.release(n)
}

func (n *HeadlessNode) Stream() transport.Stream {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stream
}

func (n *HeadlessNode) Gains() (float64, float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.left, n.right
}

func (n *HeadlessNode) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
