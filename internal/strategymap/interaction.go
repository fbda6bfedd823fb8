package strategymap

import "math"

type DragState int

const (
	Idle DragState = iota
	Panning
	DraggingNode
)

func (s DragState) String() string {
	switch s {
	case Panning:
		return "panning"
	case DraggingNode:
		return "dragging-node"
	default:
		return "idle"
	}
}

// Layer is the active edit layer. Guidelines and initiatives are mutually
// exclusive drag targets: the non-primary kind stays visible but locked.
type Layer string

const (
	LayerGuidelines  Layer = "guidelines"
	LayerInitiatives Layer = "initiatives"
)

// clickSlop is the pointer travel, in screen pixels, below which a
// down/up pair counts as a click rather than a drag.
const clickSlop = 3.0

// PositionCommit is the single write emitted when a drag completes.
// Coordinates are rounded to integers for storage.
type PositionCommit struct {
	NodeID string
	Kind   NodeKind
	X      int
	Y      int
	Seq    uint64
}

// Interaction is the client-local map interaction machine. It is
// single-threaded by construction: one pointer, one state, no locking.
// Panning the viewport and dragging a node are separate states and never
// overlap.
type Interaction struct {
	state DragState
	layer Layer

	targetID   string
	targetKind NodeKind
	nodeX      float64
	nodeY      float64

	panOffsetX float64
	panOffsetY float64

	startX float64
	startY float64
	lastX  float64
	lastY  float64
	moved  bool

	// dragJustEnded suppresses the click that the same pointer-up would
	// otherwise be read as.
	dragJustEnded bool

	seq          uint64
	lastAckedSeq uint64
}

func NewInteraction(layer Layer) *Interaction {
	return &Interaction{layer: layer}
}

func (it *Interaction) State() DragState { return it.state }
func (it *Interaction) Layer() Layer     { return it.layer }

// SetLayer switches the active layer. Only legal while idle.
func (it *Interaction) SetLayer(layer Layer) bool {
	if it.state != Idle {
		return false
	}
	it.layer = layer
	return true
}

// Draggable reports whether the current layer allows dragging a node kind.
// The institution anchor is draggable in every layer.
func (it *Interaction) Draggable(kind NodeKind) bool {
	switch kind {
	case NodeInstitution:
		return true
	case NodeGuideline:
		return it.layer == LayerGuidelines
	case NodeInitiative:
		return it.layer == LayerInitiatives
	}
	return false
}

// PointerDownNode starts a node drag when the node's kind is draggable in the
// current layer. Returns false (and stays Idle) otherwise, so a locked node
// still receives clicks.
func (it *Interaction) PointerDownNode(nodeID string, kind NodeKind, nodeX, nodeY, pointerX, pointerY float64) bool {
	if it.state != Idle || !it.Draggable(kind) {
		return false
	}
	it.state = DraggingNode
	it.targetID = nodeID
	it.targetKind = kind
	it.nodeX, it.nodeY = nodeX, nodeY
	it.startX, it.startY = pointerX, pointerY
	it.lastX, it.lastY = pointerX, pointerY
	it.moved = false
	it.dragJustEnded = false
	return true
}

// PointerDownCanvas starts panning.
func (it *Interaction) PointerDownCanvas(pointerX, pointerY float64) bool {
	if it.state != Idle {
		return false
	}
	it.state = Panning
	it.startX, it.startY = pointerX, pointerY
	it.lastX, it.lastY = pointerX, pointerY
	it.moved = false
	it.dragJustEnded = false
	return true
}

// PointerMove applies pointer travel to the dragged node or the pan offset.
// No network I/O happens here; edges are recomputed synchronously by the
// caller from NodePosition.
func (it *Interaction) PointerMove(pointerX, pointerY float64) {
	if it.state == Idle {
		return
	}
	dx := pointerX - it.lastX
	dy := pointerY - it.lastY
	it.lastX, it.lastY = pointerX, pointerY

	if !it.moved {
		if abs(pointerX-it.startX) > clickSlop || abs(pointerY-it.startY) > clickSlop {
			it.moved = true
		}
	}

	switch it.state {
	case DraggingNode:
		it.nodeX += dx
		it.nodeY += dy
	case Panning:
		it.panOffsetX += dx
		it.panOffsetY += dy
	}
}

// NodePosition is the in-flight position of the dragged node, valid only in
// DraggingNode.
func (it *Interaction) NodePosition() (x, y float64, ok bool) {
	if it.state != DraggingNode {
		return 0, 0, false
	}
	return it.nodeX, it.nodeY, true
}

// PanOffset is the accumulated viewport translation.
func (it *Interaction) PanOffset() (x, y float64) {
	return it.panOffsetX, it.panOffsetY
}

// PointerUp ends the active gesture. A node drag that actually moved emits
// exactly one PositionCommit; a down/up within the click slop is a click and
// emits nothing. WasClick lets the caller open the node instead of saving it.
func (it *Interaction) PointerUp() (commit *PositionCommit, wasClick bool) {
	switch it.state {
	case DraggingNode:
		it.state = Idle
		if !it.moved {
			return nil, true
		}
		it.dragJustEnded = true
		it.seq++
		return &PositionCommit{
			NodeID: it.targetID,
			Kind:   it.targetKind,
			X:      int(math.Round(it.nodeX)),
			Y:      int(math.Round(it.nodeY)),
			Seq:    it.seq,
		}, false
	case Panning:
		it.state = Idle
		return nil, !it.moved
	default:
		return nil, false
	}
}

// ConsumeDragEnd reports and clears the just-finished-a-drag flag. Callers
// check it before treating a subsequent synthetic click event as a real
// click.
func (it *Interaction) ConsumeDragEnd() bool {
	ended := it.dragJustEnded
	it.dragJustEnded = false
	return ended
}

// AckCommit records a server acknowledgement for a commit. A response for
// anything but the latest commit is stale and ignored: the position shown is
// always the latest one the user produced, never a late echo of an older
// write.
func (it *Interaction) AckCommit(seq uint64) bool {
	if seq != it.seq || seq <= it.lastAckedSeq {
		return false
	}
	it.lastAckedSeq = seq
	return true
}

// FailCommit surfaces a failed position write. The in-memory position is
// kept, never silently reverted; the caller decides whether to retry.
func (it *Interaction) FailCommit(seq uint64) bool {
	return seq == it.seq
}
