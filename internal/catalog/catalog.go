package catalog

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"edupanel/internal/blobstore"
	"edupanel/internal/models"
)

// FieldKind is the value type of a plain record field.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindRichText FieldKind = "richtext"
	KindInt      FieldKind = "int"
	KindDate     FieldKind = "date"
	KindBool     FieldKind = "bool"
)

const defaultMaxFiles = 10

var (
	resourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	fieldNamePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	subdirPattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// Names served by fixed routes; a resource can't shadow them.
var reservedResourceNames = map[string]struct{}{
	"uploads":   {},
	"resources": {},
	"admin":     {},
}

// Keys owned by the record envelope itself.
var reservedFieldNames = map[string]struct{}{
	"id":        {},
	"resource":  {},
	"version":   {},
	"files":     {},
	"createdAt": {},
	"updatedAt": {},
}

// FieldSpec declares one plain input field.
type FieldSpec struct {
	Name      string    `yaml:"name" json:"name"`
	Kind      FieldKind `yaml:"kind" json:"kind"`
	Required  bool      `yaml:"required" json:"required"`
	MaxLength int       `yaml:"max_length" json:"maxLength,omitempty"`
}

// AttachmentField declares one file-bearing field.
type AttachmentField struct {
	Name     string               `yaml:"name" json:"name"`
	Required bool                 `yaml:"required" json:"required"`
	Multiple bool                 `yaml:"multiple" json:"multiple"`
	MaxFiles int                  `yaml:"max_files" json:"maxFiles,omitempty"`
	Profile  models.UploadProfile `yaml:"profile" json:"profile"`
	Subdir   string               `yaml:"subdir" json:"subdir"`
	// Default is a placeholder blob key, relative to the upload prefix, bound
	// when no file is uploaded on create.
	Default string `yaml:"default" json:"default,omitempty"`
}

// Limit returns the maximum number of files the field accepts.
func (a AttachmentField) Limit() int {
	if !a.Multiple {
		return 1
	}
	if a.MaxFiles > 0 {
		return a.MaxFiles
	}
	return defaultMaxFiles
}

// Resource is the input schema of one REST resource.
type Resource struct {
	Name        string            `yaml:"name" json:"name"`
	UniqueField string            `yaml:"unique_field" json:"uniqueField,omitempty"`
	Fields      []FieldSpec       `yaml:"fields" json:"fields"`
	Attachments []AttachmentField `yaml:"attachments" json:"attachments"`
}

// Field looks up a plain field by name.
func (r *Resource) Field(name string) (FieldSpec, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Attachment looks up an attachment field by name.
func (r *Resource) Attachment(name string) (AttachmentField, bool) {
	for _, a := range r.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return AttachmentField{}, false
}

// RichTextFields lists fields whose bodies may embed managed images.
func (r *Resource) RichTextFields() []string {
	var out []string
	for _, f := range r.Fields {
		if f.Kind == KindRichText {
			out = append(out, f.Name)
		}
	}
	return out
}

// MultipleFields reports which attachment fields hold lists.
func (r *Resource) MultipleFields() map[string]bool {
	out := make(map[string]bool, len(r.Attachments))
	for _, a := range r.Attachments {
		if a.Multiple {
			out[a.Name] = true
		}
	}
	return out
}

// UniqueValue returns the case-folded unique key of fields, or "" when the
// resource has no unique field or the value is unset.
func (r *Resource) UniqueValue(fields map[string]any) string {
	if r.UniqueField == "" {
		return ""
	}
	value, ok := fields[r.UniqueField].(string)
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func (r *Resource) validate() error {
	if !resourceNamePattern.MatchString(r.Name) {
		return fmt.Errorf("invalid resource name %q", r.Name)
	}
	if _, ok := reservedResourceNames[r.Name]; ok {
		return fmt.Errorf("resource name %q is reserved", r.Name)
	}
	seen := map[string]struct{}{}
	claim := func(name string) error {
		if !fieldNamePattern.MatchString(name) {
			return fmt.Errorf("%s: invalid field name %q", r.Name, name)
		}
		if _, ok := reservedFieldNames[name]; ok {
			return fmt.Errorf("%s: field name %q is reserved", r.Name, name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%s: duplicate field %q", r.Name, name)
		}
		seen[name] = struct{}{}
		return nil
	}

	for i := range r.Fields {
		f := &r.Fields[i]
		if err := claim(f.Name); err != nil {
			return err
		}
		if f.Kind == "" {
			f.Kind = KindText
		}
		switch f.Kind {
		case KindText, KindRichText, KindInt, KindDate, KindBool:
		default:
			return fmt.Errorf("%s.%s: invalid kind %q", r.Name, f.Name, f.Kind)
		}
		if f.MaxLength < 0 {
			return fmt.Errorf("%s.%s: max_length must be >= 0", r.Name, f.Name)
		}
	}

	for i := range r.Attachments {
		a := &r.Attachments[i]
		if err := claim(a.Name); err != nil {
			return err
		}
		profile, err := models.ParseUploadProfile(string(a.Profile))
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.Name, a.Name, err)
		}
		a.Profile = profile
		if a.Subdir == "" {
			a.Subdir = r.Name
		}
		if !subdirPattern.MatchString(a.Subdir) {
			return fmt.Errorf("%s.%s: invalid subdir %q", r.Name, a.Name, a.Subdir)
		}
		if a.MaxFiles < 0 {
			return fmt.Errorf("%s.%s: max_files must be >= 0", r.Name, a.Name)
		}
		if a.Default != "" {
			if a.Multiple {
				return fmt.Errorf("%s.%s: default asset requires a single-file field", r.Name, a.Name)
			}
			key, err := blobstore.CleanKey(a.Default)
			if err != nil || key != a.Default {
				return fmt.Errorf("%s.%s: default %q must be a blob key relative to the upload prefix", r.Name, a.Name, a.Default)
			}
		}
	}

	if r.UniqueField != "" {
		f, ok := r.Field(r.UniqueField)
		if !ok || f.Kind != KindText {
			return fmt.Errorf("%s: unique field %q must be a text field", r.Name, r.UniqueField)
		}
	}
	return nil
}

// Catalog is the set of resources the server exposes.
type Catalog struct {
	resources map[string]*Resource
	order     []string
}

// New validates resources and builds a catalog.
func New(resources []Resource) (*Catalog, error) {
	c := &Catalog{resources: make(map[string]*Resource, len(resources))}
	for i := range resources {
		res := resources[i]
		res.Fields = append([]FieldSpec(nil), res.Fields...)
		res.Attachments = append([]AttachmentField(nil), res.Attachments...)
		if err := res.validate(); err != nil {
			return nil, err
		}
		if _, ok := c.resources[res.Name]; ok {
			return nil, fmt.Errorf("duplicate resource %q", res.Name)
		}
		c.resources[res.Name] = &res
		c.order = append(c.order, res.Name)
	}
	sort.Strings(c.order)
	return c, nil
}

// Get returns a resource by name.
func (c *Catalog) Get(name string) (*Resource, bool) {
	if c == nil {
		return nil, false
	}
	res, ok := c.resources[name]
	return res, ok
}

// Names returns resource names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Resources returns resources in name order.
func (c *Catalog) Resources() []*Resource {
	if c == nil {
		return nil
	}
	out := make([]*Resource, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.resources[name])
	}
	return out
}

// DefaultAssets lists the placeholder blob keys declared by attachment fields.
func (c *Catalog) DefaultAssets() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, res := range c.Resources() {
		for _, a := range res.Attachments {
			if a.Default == "" {
				continue
			}
			if _, ok := seen[a.Default]; ok {
				continue
			}
			seen[a.Default] = struct{}{}
			out = append(out, a.Default)
		}
	}
	sort.Strings(out)
	return out
}

type catalogFile struct {
	// Replace drops the built-in resources instead of merging into them.
	Replace   bool       `yaml:"replace"`
	Resources []Resource `yaml:"resources"`
}

// Load builds the catalog from the built-in defaults and an optional YAML
// override file. Resources in the file replace built-ins with the same name.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return New(DefaultResources())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse merges a YAML catalog document into the built-in defaults.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	var base []Resource
	if !file.Replace {
		base = DefaultResources()
	}
	index := make(map[string]int, len(base))
	for i, res := range base {
		index[res.Name] = i
	}
	for _, res := range file.Resources {
		if i, ok := index[res.Name]; ok {
			base[i] = res
			continue
		}
		index[res.Name] = len(base)
		base = append(base, res)
	}
	return New(base)
}
