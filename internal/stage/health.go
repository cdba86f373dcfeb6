package stage

// Health is a stage's answer to "could this run now?". Detail names the
// first missing dependency when Ready is false.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Summary renders the health for status output.
func (h Health) Summary() string {
	switch {
	case h.Ready:
		return "ready"
	case h.Detail != "":
		return h.Detail
	default:
		return "not ready"
	}
}
