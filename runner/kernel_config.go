package runner

// KernelConfig represents the configuration for a specific kernel execution
// It references bindings and specifies which memory operations to perform
type KernelConfig struct {
	Name       string
	Parameters []ParameterUsage
}

// CopyConfig represents a standalone memory copy operation configuration
type CopyConfig struct {
	Parameters []ParameterUsage
}

// GetParameter finds a parameter usage by name
func (kc *KernelConfig) GetParameter(name string) *ParameterUsage {
	for i := range kc.Parameters {
		if kc.Parameters[i].Binding.Name == name {
			return &kc.Parameters[i]
		}
	}
	return nil
}

// HasParameter checks if a parameter is configured
func (kc *KernelConfig) HasParameter(name string) bool {
	return kc.GetParameter(name) != nil
}

func (kr *Runner) usages(params []*ParamConfig) ([]ParameterUsage, error) {
	out := make([]ParameterUsage, 0, len(params))
	for _, param := range params {
		if param == nil {
			continue
		}
		if param.binding == nil {
			return nil, InvalidInputError("parameter %s has no binding", param.name)
		}
		if param.actions&CopyTo != 0 && !param.binding.Mode.CanRead() {
			return nil, InvalidInputError("parameter %s is %s and cannot be copied to the device",
				param.name, param.binding.Mode)
		}
		out = append(out, ParameterUsage{Binding: param.binding, Actions: param.actions})
	}
	return out, nil
}

// ConfigureKernel records which bindings a kernel uses and the copies to
// perform around it. Every binding must be configured, since the kernel
// takes all of them as arguments.
func (kr *Runner) ConfigureKernel(name string, params ...*ParamConfig) (*KernelConfig, error) {
	if !kr.IsAllocated {
		return nil, InvalidInputError("device memory not allocated - call AllocateDevice first")
	}
	usages, err := kr.usages(params)
	if err != nil {
		return nil, err
	}
	config := &KernelConfig{Name: name, Parameters: usages}
	for _, argName := range kr.argumentNames() {
		if !config.HasParameter(argName) {
			return nil, InvalidInputError("kernel %s: binding %s not configured", name, argName)
		}
	}

	kr.KernelConfigs[name] = config
	for _, u := range usages {
		kr.logger.Debug("kernel parameter", "kernel", name, "binding", bindingSummary(u.Binding),
			"copy_to", u.NeedsCopyTo(), "copy_back", u.NeedsCopyBack())
	}
	return config, nil
}

// ConfigureCopy creates a configuration for standalone memory operations
func (kr *Runner) ConfigureCopy(params ...*ParamConfig) (*CopyConfig, error) {
	if !kr.IsAllocated {
		return nil, InvalidInputError("device memory not allocated - call AllocateDevice first")
	}
	usages, err := kr.usages(params)
	if err != nil {
		return nil, err
	}
	return &CopyConfig{Parameters: usages}, nil
}

// ExecuteCopy executes a copy configuration
func (kr *Runner) ExecuteCopy(config *CopyConfig) error {
	if config == nil {
		return InvalidInputError("copy configuration is nil")
	}
	return kr.executeCopyActions(config.Parameters)
}

// Param creates a parameter configuration for a named binding. The copies
// requested when the binding was defined are the starting actions.
func (kr *Runner) Param(name string) *ParamConfig {
	pc := &ParamConfig{
		name:    name,
		binding: kr.GetBinding(name),
		actions: NoAction,
	}
	if pc.binding != nil && pc.binding.ParamSpec != nil {
		if pc.binding.ParamSpec.NeedsCopyTo() {
			pc.actions |= CopyTo
		}
		if pc.binding.ParamSpec.NeedsCopyBack() {
			pc.actions |= CopyBack
		}
	}
	return pc
}

// ParamConfig is a lightweight builder for configuring parameter actions
type ParamConfig struct {
	name    string
	binding *DeviceBinding
	actions ActionFlags
}

// CopyTo sets the parameter to copy from host to device
func (pc *ParamConfig) CopyTo() *ParamConfig {
	pc.actions |= CopyTo
	return pc
}

// CopyBack sets the parameter to copy from device to host
func (pc *ParamConfig) CopyBack() *ParamConfig {
	pc.actions |= CopyBack
	return pc
}

// Copy sets the parameter for bidirectional copy
func (pc *ParamConfig) Copy() *ParamConfig {
	pc.actions |= Copy
	return pc
}

// NoCopy explicitly disables all copy operations for this parameter
func (pc *ParamConfig) NoCopy() *ParamConfig {
	pc.actions = NoAction
	return pc
}
