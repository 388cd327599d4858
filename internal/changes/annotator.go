package changes

import "sort"

// An Annotator collects the per-class change summary produced while
// reconstructing an archive. Entries are keyed so repeated reporting of the
// same member (a reconstruction retried after a rename fix, say) stays
// idempotent.
type Annotator struct {
	classes map[string]*ClassChanges
}

// ClassChanges is the recorded outcome for a single class.
type ClassChanges struct {
	Name string `json:"name"`

	DroppedFields  []string `json:"droppedFields,omitempty"`
	AddedFields    []string `json:"addedFields,omitempty"`
	ChangedFields  []string `json:"changedFields,omitempty"`
	DroppedMethods []string `json:"droppedMethods,omitempty"`
	AddedMethods   []string `json:"addedMethods,omitempty"`
	ChangedMethods []string `json:"changedMethods,omitempty"`
}

// Empty reports whether nothing was recorded for the class.
func (c *ClassChanges) Empty() bool {
	return len(c.DroppedFields) == 0 && len(c.AddedFields) == 0 && len(c.ChangedFields) == 0 &&
		len(c.DroppedMethods) == 0 && len(c.AddedMethods) == 0 && len(c.ChangedMethods) == 0
}

func NewAnnotator() *Annotator {
	return &Annotator{classes: make(map[string]*ClassChanges)}
}

func (a *Annotator) class(name string) *ClassChanges {
	c, ok := a.classes[name]
	if !ok {
		c = &ClassChanges{Name: name}
		a.classes[name] = c
	}
	return c
}

func (a *Annotator) DropField(class, key string)  { appendOnce(&a.class(class).DroppedFields, key) }
func (a *Annotator) AddField(class, key string)   { appendOnce(&a.class(class).AddedFields, key) }
func (a *Annotator) DropMethod(class, key string) { appendOnce(&a.class(class).DroppedMethods, key) }
func (a *Annotator) AddMethod(class, key string)  { appendOnce(&a.class(class).AddedMethods, key) }

func (a *Annotator) AddChangedField(class, key string, cs ChangeSet) {
	appendOnce(&a.class(class).ChangedFields, key+" ("+cs.String()+")")
}

func (a *Annotator) AddChangedMethod(class, key string, cs ChangeSet) {
	appendOnce(&a.class(class).ChangedMethods, key+" ("+cs.String()+")")
}

// Manifest returns every non-empty class record sorted by class name.
func (a *Annotator) Manifest() []*ClassChanges {
	out := make([]*ClassChanges, 0, len(a.classes))
	for _, c := range a.classes {
		if !c.Empty() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func appendOnce(dst *[]string, s string) {
	for _, have := range *dst {
		if have == s {
			return
		}
	}
	*dst = append(*dst, s)
}
