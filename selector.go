package hephaestus

import (
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// QueueCapability is what queue selection needs to know about one family.
type QueueCapability struct {
	Graphics bool
	Present  bool
}

// QueueSelection holds the chosen graphics and present family indices. -1
// means none was found.
type QueueSelection struct {
	Graphics int
	Present  int
}

// Complete reports whether both families were found.
func (q QueueSelection) Complete() bool {
	return q.Graphics >= 0 && q.Present >= 0
}

// Shared reports whether one family serves both roles.
func (q QueueSelection) Shared() bool {
	return q.Graphics == q.Present
}

// Families returns the distinct family indices, graphics first.
func (q QueueSelection) Families() []int {
	if q.Shared() {
		return []int{q.Graphics}
	}
	return []int{q.Graphics, q.Present}
}

// SelectQueueFamilies scans the families in order. Every graphics-capable
// family updates the graphics index and every present-capable family updates
// the present index; the scan stops as soon as both are set.
func SelectQueueFamilies(caps []QueueCapability) QueueSelection {
	sel := QueueSelection{Graphics: -1, Present: -1}
	for i, c := range caps {
		if c.Graphics {
			sel.Graphics = i
		}
		if c.Present {
			sel.Present = i
		}
		if sel.Complete() {
			break
		}
	}
	return sel
}

// DeviceCandidate describes a physical device for selection.
type DeviceCandidate struct {
	// Index is the enumeration order.
	Index               int
	Name                string
	Discrete            bool
	GeometryShader      bool
	MaxImageDimension2D uint32

	// Eligible is false when the device cannot present to the surface.
	// Reason says why.
	Eligible bool
	Reason   string
	Queues   QueueSelection
}

// ScoredCandidate is a candidate together with its score.
type ScoredCandidate struct {
	DeviceCandidate
	Score int

	pos int
}

// DeviceComparator reports whether a should be preferred over b.
type DeviceComparator func(a, b ScoredCandidate) bool

// SelectorOptions customize SelectDevice. Zero values select DefaultScore and
// DefaultCompare.
type SelectorOptions struct {
	Score   func(DeviceCandidate) int
	Compare DeviceComparator
	// PreferredName selects the first eligible device whose name contains it,
	// ignoring case, before scoring is consulted.
	PreferredName string
}

// DefaultScore starts at -1000 and adds 1000 for geometry shader support,
// the maximum 2D image dimension, and 1000 for a discrete GPU.
func DefaultScore(c DeviceCandidate) int {
	score := -1000
	if c.GeometryShader {
		score += 1000
	}
	score += int(c.MaxImageDimension2D)
	if c.Discrete {
		score += 1000
	}
	return score
}

// DefaultCompare orders by score descending, then discrete first, then name
// ascending, then enumeration order.
func DefaultCompare(a, b ScoredCandidate) bool {
	switch {
	case a.Score != b.Score:
		return a.Score > b.Score
	case a.Discrete != b.Discrete:
		return a.Discrete
	case a.Name != b.Name:
		return a.Name < b.Name
	}
	return a.Index < b.Index
}

// SelectDevice picks a device among the eligible candidates and returns its
// position in cands. A best score of zero or less is logged at error level but
// the device is still used.
func SelectDevice(cands []DeviceCandidate, opts SelectorOptions) (int, error) {
	score := opts.Score
	if score == nil {
		score = DefaultScore
	}
	less := opts.Compare
	if less == nil {
		less = DefaultCompare
	}

	scored := make([]ScoredCandidate, 0, len(cands))
	for i, c := range cands {
		if !c.Eligible {
			logger().Info("device ineligible", slog.String("device", c.Name), slog.String("reason", c.Reason))
			continue
		}
		scored = append(scored, ScoredCandidate{DeviceCandidate: c, Score: score(c), pos: i})
	}
	if len(scored) == 0 {
		return -1, errors.Newf("none of %d devices can present to the surface", len(cands))
	}

	if opts.PreferredName != "" {
		want := strings.ToLower(opts.PreferredName)
		for _, s := range scored {
			if strings.Contains(strings.ToLower(s.Name), want) {
				logger().Info("selected preferred device", slog.String("device", s.Name))
				return s.pos, nil
			}
		}
		logger().Warn("preferred device not found", slog.String("preferred", opts.PreferredName))
	}

	slices.SortStableFunc(scored, func(a, b ScoredCandidate) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	})
	best := scored[0]
	if best.Score <= 0 {
		logger().Error("no suitable device found, selecting the best available",
			slog.String("device", best.Name), slog.Int("score", best.Score))
	} else {
		logger().Info("selected physical device", slog.String("device", best.Name), slog.Int("score", best.Score))
	}
	return best.pos, nil
}

// Candidate describes p for SelectDevice. A device is eligible when it
// supports the swapchain extension and has graphics and present queues for
// surface.
func (p *PhysicalDevice) Candidate(surface vk.Surface) DeviceCandidate {
	c := DeviceCandidate{
		Index:               p.Index,
		Name:                p.DeviceName,
		Discrete:            p.IsDiscrete(),
		GeometryShader:      p.VKPhysicalDeviceFeatures.GeometryShader == vk.True,
		MaxImageDimension2D: p.Limits().MaxImageDimension2D,
	}
	families := p.QueueFamilies()
	c.Queues = SelectQueueFamilies(families.Capabilities(func(i int) bool {
		return families[i].SupportsPresent(surface)
	}))
	switch {
	case !p.SupportsExtensions(SwapchainExtension):
		c.Reason = "missing " + SwapchainExtension
	case !c.Queues.Complete():
		c.Reason = "no graphics and present queue families"
	default:
		c.Eligible = true
	}
	return c
}
