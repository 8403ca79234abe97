package discovery

// Kind identifies the machine resource types the tool operates on.
type Kind string

const (
	KindVirtualMachine Kind = "virtualMachines"
	KindScaleSet       Kind = "virtualMachineScaleSets"
	KindArcMachine     Kind = "arcMachines"
)

// Kinds lists every kind in the order reports render them.
var Kinds = []Kind{KindVirtualMachine, KindScaleSet, KindArcMachine}

// Resource is one discovered machine, flattened to the fields the pricing and
// reporting paths need.
type Resource struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Kind          Kind               `json:"kind"`
	Location      string             `json:"location"`
	ResourceGroup string             `json:"resourceGroup"`
	Tags          map[string]*string `json:"tags,omitempty"`
}

// Failure records a resource type whose listing failed. The error keeps the
// service response (status code and body) intact.
type Failure struct {
	Kind Kind  `json:"kind"`
	Err  error `json:"-"`
}

// Set holds everything one discovery run found, grouped by kind.
type Set struct {
	VirtualMachines []Resource `json:"virtualMachines"`
	ScaleSets       []Resource `json:"virtualMachineScaleSets"`
	ArcMachines     []Resource `json:"arcMachines"`
	Failures        []Failure  `json:"-"`
}

// ByKind returns the resources of one kind.
func (s *Set) ByKind(k Kind) []Resource {
	switch k {
	case KindVirtualMachine:
		return s.VirtualMachines
	case KindScaleSet:
		return s.ScaleSets
	case KindArcMachine:
		return s.ArcMachines
	}
	return nil
}

// All returns every discovered resource in kind order.
func (s *Set) All() []Resource {
	out := make([]Resource, 0, s.Count())
	for _, k := range Kinds {
		out = append(out, s.ByKind(k)...)
	}
	return out
}

// Count returns the total number of discovered resources.
func (s *Set) Count() int {
	return len(s.VirtualMachines) + len(s.ScaleSets) + len(s.ArcMachines)
}
