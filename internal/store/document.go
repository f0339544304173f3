// Package store holds the persisted state shared by the document-style
// backends and the consistency rules every backend enforces.
package store

import (
	"slices"
	"strings"

	"ragcorpus/internal/domain"
)

// Document is the whole persisted state of a corpus. The memory and jsonfile
// backends keep exactly this value; the sqlite backend maps it onto tables.
type Document struct {
	Fragments   []domain.Fragment   `json:"fragments"`
	Sources     []domain.Source     `json:"sources"`
	Collections []domain.Collection `json:"collections"`
}

// NewDocument returns an empty state with non-nil slices.
func NewDocument() *Document {
	return &Document{
		Fragments:   []domain.Fragment{},
		Sources:     []domain.Source{},
		Collections: []domain.Collection{},
	}
}

// Normalize replaces nil slices, as left by an older or hand-edited file.
func (d *Document) Normalize() {
	if d.Fragments == nil {
		d.Fragments = []domain.Fragment{}
	}
	if d.Sources == nil {
		d.Sources = []domain.Source{}
	}
	if d.Collections == nil {
		d.Collections = []domain.Collection{}
	}
	for i := range d.Sources {
		if d.Sources[i].CollectionIDs == nil {
			d.Sources[i].CollectionIDs = []string{}
		}
	}
}

func (d *Document) sourceIndex(id string) int {
	return slices.IndexFunc(d.Sources, func(s domain.Source) bool { return s.ID == id })
}

func (d *Document) collectionIndex(id string) int {
	return slices.IndexFunc(d.Collections, func(c domain.Collection) bool { return c.ID == id })
}

// PutSource upserts src and appends fragments, then recomputes the chunk
// count from the stored fragment total.
func (d *Document) PutSource(src domain.Source, fragments []domain.Fragment) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if err := CheckFragments(src.ID, fragments); err != nil {
		return err
	}
	for _, cid := range src.CollectionIDs {
		if d.collectionIndex(cid) < 0 {
			return domain.NotFound(domain.EntityCollection, cid)
		}
	}
	if len(fragments) > 0 {
		existing := make(map[string]struct{}, len(d.Fragments))
		for _, f := range d.Fragments {
			existing[f.ID] = struct{}{}
		}
		for _, f := range fragments {
			if _, ok := existing[f.ID]; ok {
				return domain.AlreadyExistsf("fragment id %q", f.ID)
			}
		}
	}

	src = src.Clone()
	src.CollectionIDs = Dedupe(src.CollectionIDs)
	for _, f := range fragments {
		d.Fragments = append(d.Fragments, cloneFragment(f))
	}
	src.ChunkCount = d.countFragments(src.ID)
	if i := d.sourceIndex(src.ID); i >= 0 {
		d.Sources[i] = src
	} else {
		d.Sources = append(d.Sources, src)
	}
	return nil
}

// CheckFragments enforces that every fragment belongs to sourceID and that
// no id repeats within the batch.
func CheckFragments(sourceID string, fragments []domain.Fragment) error {
	seen := make(map[string]struct{}, len(fragments))
	for _, f := range fragments {
		if f.SourceID != sourceID {
			return domain.Validationf("fragment %s belongs to source %q, not %q", f.ID, f.SourceID, sourceID)
		}
		if f.ID == "" {
			return domain.Validationf("fragment of source %s has no id", sourceID)
		}
		if _, ok := seen[f.ID]; ok {
			return domain.Validationf("fragment id %q repeats", f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}

// Dedupe returns ids without repeats, keeping first occurrences in order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (d *Document) countFragments(sourceID string) int {
	n := 0
	for _, f := range d.Fragments {
		if f.SourceID == sourceID {
			n++
		}
	}
	return n
}

func (d *Document) ListSources() []domain.Source {
	out := make([]domain.Source, len(d.Sources))
	for i, s := range d.Sources {
		out[i] = s.Clone()
	}
	return out
}

func (d *Document) GetSource(id string) (domain.Source, error) {
	i := d.sourceIndex(id)
	if i < 0 {
		return domain.Source{}, domain.NotFound(domain.EntitySource, id)
	}
	return d.Sources[i].Clone(), nil
}

// DeleteSource removes the source and every fragment it owns.
func (d *Document) DeleteSource(id string) error {
	i := d.sourceIndex(id)
	if i < 0 {
		return domain.NotFound(domain.EntitySource, id)
	}
	d.Sources = slices.Delete(d.Sources, i, i+1)
	d.Fragments = slices.DeleteFunc(d.Fragments, func(f domain.Fragment) bool { return f.SourceID == id })
	return nil
}

func (d *Document) ListCollections() []domain.Collection {
	return slices.Clone(d.Collections)
}

func (d *Document) GetCollection(id string) (domain.Collection, error) {
	i := d.collectionIndex(id)
	if i < 0 {
		return domain.Collection{}, domain.NotFound(domain.EntityCollection, id)
	}
	return d.Collections[i], nil
}

// CreateCollection registers c. Ids and case-insensitive names are unique.
func (d *Document) CreateCollection(c domain.Collection) error {
	c, err := CheckCollection(c)
	if err != nil {
		return err
	}
	if d.collectionIndex(c.ID) >= 0 {
		return domain.AlreadyExistsf("collection id %q", c.ID)
	}
	if d.nameTaken(c.Name, "") {
		return domain.AlreadyExistsf("collection name %q", c.Name)
	}
	d.Collections = append(d.Collections, c)
	return nil
}

// RenameCollection changes only the display name; membership is by id and
// needs no update.
func (d *Document) RenameCollection(id, name string) (domain.Collection, error) {
	name, err := CheckName(name)
	if err != nil {
		return domain.Collection{}, err
	}
	i := d.collectionIndex(id)
	if i < 0 {
		return domain.Collection{}, domain.NotFound(domain.EntityCollection, id)
	}
	if d.nameTaken(name, id) {
		return domain.Collection{}, domain.AlreadyExistsf("collection name %q", name)
	}
	d.Collections[i].Name = name
	return d.Collections[i], nil
}

// DeleteCollection removes the collection and strips it from every source.
func (d *Document) DeleteCollection(id string) error {
	i := d.collectionIndex(id)
	if i < 0 {
		return domain.NotFound(domain.EntityCollection, id)
	}
	d.Collections = slices.Delete(d.Collections, i, i+1)
	for j := range d.Sources {
		d.Sources[j].RemoveCollection(id)
	}
	return nil
}

func (d *Document) nameTaken(name, exceptID string) bool {
	key := NameKey(name)
	for _, c := range d.Collections {
		if c.ID != exceptID && NameKey(c.Name) == key {
			return true
		}
	}
	return false
}

// AssignCollection adds the membership; assigning twice is a no-op.
func (d *Document) AssignCollection(sourceID, collectionID string) error {
	i := d.sourceIndex(sourceID)
	if i < 0 {
		return domain.NotFound(domain.EntitySource, sourceID)
	}
	if d.collectionIndex(collectionID) < 0 {
		return domain.NotFound(domain.EntityCollection, collectionID)
	}
	d.Sources[i].AddCollection(collectionID)
	return nil
}

// UnassignCollection removes the membership if present.
func (d *Document) UnassignCollection(sourceID, collectionID string) error {
	i := d.sourceIndex(sourceID)
	if i < 0 {
		return domain.NotFound(domain.EntitySource, sourceID)
	}
	if d.collectionIndex(collectionID) < 0 {
		return domain.NotFound(domain.EntityCollection, collectionID)
	}
	d.Sources[i].RemoveCollection(collectionID)
	return nil
}

// Select returns copies of the fragments whose source exists and that
// pass filter, in insertion order.
func (d *Document) Select(filter domain.FragmentFilter) []domain.Fragment {
	live := make(map[string]struct{}, len(d.Sources))
	for _, s := range d.Sources {
		live[s.ID] = struct{}{}
	}
	m := NewMatcher(filter)
	out := make([]domain.Fragment, 0, len(d.Fragments))
	for _, f := range d.Fragments {
		if _, ok := live[f.SourceID]; !ok {
			continue
		}
		if m.Match(f) {
			out = append(out, cloneFragment(f))
		}
	}
	return out
}

// Matcher evaluates a FragmentFilter. Both dimensions must match.
type Matcher struct {
	sources map[string]struct{}
	domains map[string]struct{}
}

func NewMatcher(filter domain.FragmentFilter) Matcher {
	var m Matcher
	if filter.SourceIDs != nil {
		m.sources = make(map[string]struct{}, len(filter.SourceIDs))
		for _, id := range filter.SourceIDs {
			m.sources[id] = struct{}{}
		}
	}
	if filter.Domains != nil {
		m.domains = make(map[string]struct{}, len(filter.Domains))
		for _, d := range domain.NormalizeDomains(filter.Domains) {
			m.domains[d] = struct{}{}
		}
	}
	return m
}

func (m Matcher) Match(f domain.Fragment) bool {
	if m.sources != nil {
		if _, ok := m.sources[f.SourceID]; !ok {
			return false
		}
	}
	if m.domains != nil {
		if _, ok := m.domains[domain.NormalizeDomain(f.Domain)]; !ok {
			return false
		}
	}
	return true
}

// CheckCollection trims and validates a collection about to be created.
func CheckCollection(c domain.Collection) (domain.Collection, error) {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return c, domain.Validationf("collection id is required")
	}
	name, err := CheckName(c.Name)
	if err != nil {
		return c, err
	}
	c.Name = name
	return c, nil
}

// CheckName trims a collection name and rejects blanks.
func CheckName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.Validationf("collection name must not be blank")
	}
	return name, nil
}

// NameKey is the form collection names are compared in.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cloneFragment(f domain.Fragment) domain.Fragment {
	f.Embedding = slices.Clone(f.Embedding)
	return f
}
