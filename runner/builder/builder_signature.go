package builder

import (
	"fmt"
	"strings"

	"github.com/notargets/vadd/device"
)

// kernelParams returns the configured parameters, or a, b -> c when none
// have been set
func (kb *Builder) kernelParams() []ParamSpec {
	if len(kb.Params) > 0 {
		return kb.Params
	}
	return []ParamSpec{
		{Name: "a", Direction: DirectionInput},
		{Name: "b", Direction: DirectionInput},
		{Name: "c", Direction: DirectionOutput},
	}
}

// splitParams separates the summed inputs from the single written parameter
func splitParams(params []ParamSpec) (inputs []string, output string, err error) {
	for i, p := range params {
		if p.IsConst() {
			inputs = append(inputs, p.Name)
			continue
		}
		if output != "" {
			return nil, "", fmt.Errorf("kernel writes %s and %s, expected a single output", output, p.Name)
		}
		if i != len(params)-1 {
			return nil, "", fmt.Errorf("output %s must be the last parameter", p.Name)
		}
		output = p.Name
	}
	if output == "" {
		return nil, "", fmt.Errorf("kernel has no output parameter")
	}
	if len(inputs) == 0 {
		return nil, "", fmt.Errorf("kernel has no input parameters")
	}
	return inputs, output, nil
}

// GenerateKernelSignature generates the parameter list in argument order
func (kb *Builder) GenerateKernelSignature(dialect device.Dialect) string {
	var params []string
	qualifier := ""
	if dialect == device.DialectOpenCL {
		qualifier = "__global "
	}
	for _, p := range kb.kernelParams() {
		constQualifier := ""
		if p.IsConst() {
			constQualifier = "const "
		}
		params = append(params, fmt.Sprintf("%s%sfloat* %s", qualifier, constQualifier, p.Name))
	}
	return strings.Join(params, ",\n\t")
}

// GenerateKernelDeclaration generates a complete kernel function declaration
func (kb *Builder) GenerateKernelDeclaration(dialect device.Dialect) string {
	keyword := "__kernel"
	if dialect == device.DialectOKL {
		keyword = "@kernel"
	}
	return fmt.Sprintf("%s void %s(\n\t%s\n)", keyword, kb.EntryPoint, kb.GenerateKernelSignature(dialect))
}

// GenerateKernel generates the elementwise sum kernel. Every dialect guards
// the store with i < N_ELEMENTS, so padding invocations do nothing.
func (kb *Builder) GenerateKernel(dialect device.Dialect) (string, error) {
	inputs, output, err := splitParams(kb.kernelParams())
	if err != nil {
		return "", err
	}
	terms := make([]string, len(inputs))
	for i, name := range inputs {
		terms[i] = name + "[i]"
	}
	assign := fmt.Sprintf("%s[i] = %s;", output, strings.Join(terms, " + "))

	var sb strings.Builder
	sb.WriteString(kb.GenerateKernelDeclaration(dialect))
	sb.WriteString(" {\n")
	switch dialect {
	case device.DialectOpenCL:
		sb.WriteString("\tconst int i = get_global_id(0);\n")
		sb.WriteString("\tif (i < N_ELEMENTS) {\n")
		sb.WriteString("\t\t" + assign + "\n")
		sb.WriteString("\t}\n")
	case device.DialectOKL:
		sb.WriteString("\tfor (int group = 0; group < NUM_GROUPS; ++group; @outer) {\n")
		sb.WriteString("\t\tfor (int item = 0; item < WORK_GROUP_SIZE; ++item; @inner) {\n")
		sb.WriteString("\t\t\tconst int i = group * WORK_GROUP_SIZE + item;\n")
		sb.WriteString("\t\t\tif (i < N_ELEMENTS) {\n")
		sb.WriteString("\t\t\t\t" + assign + "\n")
		sb.WriteString("\t\t\t}\n")
		sb.WriteString("\t\t}\n")
		sb.WriteString("\t}\n")
	default:
		return "", fmt.Errorf("unsupported kernel dialect %v", dialect)
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}
