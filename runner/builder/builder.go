package builder

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/notargets/vadd/device"
)

const (
	DefaultBackend       = "opencl"
	DefaultWorkGroupSize = 16
	DefaultEntryPoint    = "addVector"
)

// Config holds configuration for creating a Builder
type Config struct {
	Backend       string      `yaml:"backend"`
	DeviceType    device.Type `yaml:"device_type"`
	WorkGroupSize int         `yaml:"work_group_size"`
	EntryPoint    string      `yaml:"entry_point"`
	// BackendProps overrides the OCCA mode property strings probed in order
	BackendProps []string `yaml:"backend_props,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		Backend:       DefaultBackend,
		DeviceType:    device.TypeAll,
		WorkGroupSize: DefaultWorkGroupSize,
		EntryPoint:    DefaultEntryPoint,
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend cannot be empty")
	}
	if c.WorkGroupSize <= 0 {
		return fmt.Errorf("work group size must be positive, got %d", c.WorkGroupSize)
	}
	if !identRe.MatchString(c.EntryPoint) {
		return fmt.Errorf("entry point %q is not a valid identifier", c.EntryPoint)
	}
	switch c.DeviceType {
	case device.TypeAll, device.TypeCPU, device.TypeAccelerator:
	default:
		return fmt.Errorf("unknown device type %v", c.DeviceType)
	}
	return nil
}

// DispatchPlan is the launch geometry for N elements. Global is the
// smallest multiple of Local not less than N.
type DispatchPlan struct {
	N      int
	Global int
	Local  int
	Groups int
}

// Padding is the number of invocations past the last element
func (p DispatchPlan) Padding() int { return p.Global - p.N }

// Plan computes the dispatch geometry for n elements and work-group size w
func Plan(n, w int) (DispatchPlan, error) {
	if n <= 0 {
		return DispatchPlan{}, fmt.Errorf("element count must be positive, got %d", n)
	}
	if w <= 0 {
		return DispatchPlan{}, fmt.Errorf("work group size must be positive, got %d", w)
	}
	groups := (n-1)/w + 1
	if groups > math.MaxInt/w {
		return DispatchPlan{}, fmt.Errorf("%d elements in groups of %d overflow the global size", n, w)
	}
	return DispatchPlan{N: n, Global: groups * w, Local: w, Groups: groups}, nil
}

// Builder generates kernel source for one dispatch size
type Builder struct {
	Config
	Plan DispatchPlan

	// Params in kernel argument order
	Params []ParamSpec

	// Generated code
	KernelPreamble string
}

// NewBuilder creates a Builder for n elements
func NewBuilder(cfg Config, n int) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plan, err := Plan(n, cfg.WorkGroupSize)
	if err != nil {
		return nil, err
	}
	return &Builder{Config: cfg, Plan: plan}, nil
}

// SetParams validates and records the kernel parameters in argument order
func (kb *Builder) SetParams(params ...*ParamBuilder) error {
	specs := make([]ParamSpec, 0, len(params))
	seen := make(map[string]bool)
	for _, p := range params {
		spec := p.Spec
		if err := spec.Validate(); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate parameter %s", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Size != int64(kb.Plan.N) {
			return fmt.Errorf("parameter %s has %d elements, dispatch has %d", spec.Name, spec.Size, kb.Plan.N)
		}
		specs = append(specs, spec)
	}
	kb.Params = specs
	return nil
}

// GeneratePreamble generates the dispatch constants shared by every dialect
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("// %s: N=%d global=%d local=%d\n",
		kb.EntryPoint, kb.Plan.N, kb.Plan.Global, kb.Plan.Local))
	sb.WriteString(fmt.Sprintf("#define N_ELEMENTS %d\n", kb.Plan.N))
	sb.WriteString(fmt.Sprintf("#define WORK_GROUP_SIZE %d\n", kb.Plan.Local))
	sb.WriteString(fmt.Sprintf("#define NUM_GROUPS %d\n", kb.Plan.Groups))

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// KernelSource returns the preamble followed by the kernel for dialect
func (kb *Builder) KernelSource(dialect device.Dialect) (string, error) {
	kernel, err := kb.GenerateKernel(dialect)
	if err != nil {
		return "", err
	}
	return kb.GeneratePreamble() + "\n" + kernel, nil
}
