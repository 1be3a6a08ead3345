package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigParse is the sentinel wrapped by ParseError.
var ErrConfigParse = errors.New("malformed configuration")

// ParseError reports floki.yaml text that is not well formed: YAML syntax
// errors, unknown keys, or values of the wrong shape.
type ParseError struct {
	Line    int
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ParseError) Unwrap() error { return ErrConfigParse }

// Document is the syntactic form of a floki.yaml file: every field has been
// checked for shape and carries its source line, but no semantic rule has
// been applied yet. Call Validate to obtain a Config.
type Document struct {
	image           *rawImage
	mount           *rawString
	shell           *rawShell
	init            []rawString
	volumes         []rawVolume
	environment     []rawEnv
	dind            *rawDinD
	entrypoint      *rawEntrypoint
	forwardSSHAgent bool
	forwardUser     bool
}

type rawString struct {
	value string
	line  int
}

type rawImage struct {
	line  int
	ref   *rawString
	build *rawBuild
}

type rawBuild struct {
	line       int
	name       *rawString
	context    *rawString
	dockerfile *rawString
	target     *rawString
}

type rawShell struct {
	line  int
	inner *rawString
	outer *rawString
}

type rawVolume struct {
	line      int
	field     string
	short     *rawString
	host      *rawString
	container *rawString
	readOnly  bool
	swtch     bool
	create    bool
}

type rawEnv struct {
	line     int
	field    string
	name     string
	optional bool
}

type rawDinD struct {
	line     int
	enabled  bool
	mode     *rawString
	fallback *rawString
	image    *rawString
}

type rawEntrypoint struct {
	line     int
	suppress bool
	command  []string
}

type field struct {
	key   string
	line  int
	value *yaml.Node
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Parse reads floki.yaml text into a Document. It never touches the
// filesystem; the caller reads the file.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, syntaxError(err)
	}

	doc := &Document{}
	if len(root.Content) == 0 {
		return doc, nil
	}
	top := resolve(root.Content[0])
	if isNull(top) {
		return doc, nil
	}

	fields, err := mappingFields(top, "", "image", "mount", "shell", "init", "volumes",
		"environment", "dind", "entrypoint", "forward_ssh_agent", "forward_user")
	if err != nil {
		return nil, err
	}

	for _, f := range fields {
		if isNull(f.value) {
			continue
		}
		var err error
		switch f.key {
		case "image":
			doc.image, err = parseImage(f.value)
		case "mount":
			doc.mount, err = scalarString(f.value, "mount")
		case "shell":
			doc.shell, err = parseShell(f.value)
		case "init":
			doc.init, err = stringList(f.value, "init")
		case "volumes":
			doc.volumes, err = parseVolumes(f.value)
		case "environment":
			doc.environment, err = parseEnvironment(f.value)
		case "dind":
			doc.dind, err = parseDinD(f.value)
		case "entrypoint":
			doc.entrypoint, err = parseEntrypoint(f.value)
		case "forward_ssh_agent":
			doc.forwardSSHAgent, err = scalarBool(f.value, "forward_ssh_agent")
		case "forward_user":
			doc.forwardUser, err = scalarBool(f.value, "forward_user")
		}
		if err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func parseImage(n *yaml.Node) (*rawImage, error) {
	img := &rawImage{line: n.Line}
	if n.Kind == yaml.ScalarNode {
		ref, err := scalarString(n, "image")
		if err != nil {
			return nil, err
		}
		img.ref = ref
		return img, nil
	}

	fields, err := mappingFields(n, "image", "name", "build")
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if isNull(f.value) {
			continue
		}
		switch f.key {
		case "name":
			img.ref, err = scalarString(f.value, "image.name")
		case "build":
			img.build, err = parseBuild(f.value)
		}
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

func parseBuild(n *yaml.Node) (*rawBuild, error) {
	fields, err := mappingFields(n, "image.build", "name", "context", "dockerfile", "target")
	if err != nil {
		return nil, err
	}
	b := &rawBuild{line: n.Line}
	for _, f := range fields {
		if isNull(f.value) {
			continue
		}
		s, err := scalarString(f.value, "image.build."+f.key)
		if err != nil {
			return nil, err
		}
		switch f.key {
		case "name":
			b.name = s
		case "context":
			b.context = s
		case "dockerfile":
			b.dockerfile = s
		case "target":
			b.target = s
		}
	}
	return b, nil
}

func parseShell(n *yaml.Node) (*rawShell, error) {
	sh := &rawShell{line: n.Line}
	if n.Kind == yaml.ScalarNode {
		s, err := scalarString(n, "shell")
		if err != nil {
			return nil, err
		}
		sh.inner, sh.outer = s, s
		return sh, nil
	}

	fields, err := mappingFields(n, "shell", "inner", "outer")
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if isNull(f.value) {
			continue
		}
		s, err := scalarString(f.value, "shell."+f.key)
		if err != nil {
			return nil, err
		}
		if f.key == "inner" {
			sh.inner = s
		} else {
			sh.outer = s
		}
	}
	return sh, nil
}

func parseVolumes(n *yaml.Node) ([]rawVolume, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, kindError(n, "volumes", "a list")
	}

	volumes := make([]rawVolume, 0, len(n.Content))
	for i, item := range n.Content {
		item = resolve(item)
		name := fmt.Sprintf("volumes[%d]", i)
		v := rawVolume{line: item.Line, field: name}

		if item.Kind == yaml.ScalarNode {
			s, err := scalarString(item, name)
			if err != nil {
				return nil, err
			}
			v.short = s
			volumes = append(volumes, v)
			continue
		}

		fields, err := mappingFields(item, name, "host", "container", "read_only", "switch", "create")
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if isNull(f.value) {
				continue
			}
			key := name + "." + f.key
			switch f.key {
			case "host":
				v.host, err = scalarString(f.value, key)
			case "container":
				v.container, err = scalarString(f.value, key)
			case "read_only":
				v.readOnly, err = scalarBool(f.value, key)
			case "switch":
				v.swtch, err = scalarBool(f.value, key)
			case "create":
				v.create, err = scalarBool(f.value, key)
			}
			if err != nil {
				return nil, err
			}
		}
		volumes = append(volumes, v)
	}
	return volumes, nil
}

func parseEnvironment(n *yaml.Node) ([]rawEnv, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, kindError(n, "environment", "a list")
	}

	vars := make([]rawEnv, 0, len(n.Content))
	for i, item := range n.Content {
		item = resolve(item)
		name := fmt.Sprintf("environment[%d]", i)
		e := rawEnv{line: item.Line, field: name}

		if item.Kind == yaml.ScalarNode {
			s, err := scalarString(item, name)
			if err != nil {
				return nil, err
			}
			e.name = s.value
			if strings.HasSuffix(e.name, "?") {
				e.name = strings.TrimSuffix(e.name, "?")
				e.optional = true
			}
			vars = append(vars, e)
			continue
		}

		fields, err := mappingFields(item, name, "name", "optional")
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if isNull(f.value) {
				continue
			}
			switch f.key {
			case "name":
				var s *rawString
				s, err = scalarString(f.value, name+".name")
				if s != nil {
					e.name = s.value
				}
			case "optional":
				e.optional, err = scalarBool(f.value, name+".optional")
			}
			if err != nil {
				return nil, err
			}
		}
		vars = append(vars, e)
	}
	return vars, nil
}

func parseDinD(n *yaml.Node) (*rawDinD, error) {
	d := &rawDinD{line: n.Line}
	if n.Kind == yaml.ScalarNode {
		enabled, err := scalarBool(n, "dind")
		if err != nil {
			return nil, err
		}
		d.enabled = enabled
		return d, nil
	}

	fields, err := mappingFields(n, "dind", "enabled", "mode", "fallback", "image")
	if err != nil {
		return nil, err
	}
	// The mapping form implies enabled unless it says otherwise
	d.enabled = true
	for _, f := range fields {
		if isNull(f.value) {
			continue
		}
		key := "dind." + f.key
		switch f.key {
		case "enabled":
			d.enabled, err = scalarBool(f.value, key)
		case "mode":
			d.mode, err = scalarString(f.value, key)
		case "fallback":
			d.fallback, err = scalarString(f.value, key)
		case "image":
			d.image, err = scalarString(f.value, key)
		}
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

func parseEntrypoint(n *yaml.Node) (*rawEntrypoint, error) {
	fields, err := mappingFields(n, "entrypoint", "suppress", "command")
	if err != nil {
		return nil, err
	}
	ep := &rawEntrypoint{line: n.Line}
	for _, f := range fields {
		if isNull(f.value) {
			continue
		}
		switch f.key {
		case "suppress":
			ep.suppress, err = scalarBool(f.value, "entrypoint.suppress")
		case "command":
			var items []rawString
			items, err = stringList(f.value, "entrypoint.command")
			for _, it := range items {
				ep.command = append(ep.command, it.value)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return ep, nil
}

// mappingFields returns the key/value pairs of a mapping node in document
// order, rejecting unknown and duplicate keys.
func mappingFields(n *yaml.Node, path string, allowed ...string) ([]field, error) {
	n = resolve(n)
	if n.Kind != yaml.MappingNode {
		return nil, kindError(n, path, "a mapping")
	}

	seen := make(map[string]bool, len(n.Content)/2)
	fields := make([]field, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], resolve(n.Content[i+1])
		name := joinField(path, k.Value)

		known := false
		for _, a := range allowed {
			if a == k.Value {
				known = true
				break
			}
		}
		if !known {
			return nil, &ParseError{Line: k.Line, Field: name, Message: "unknown field"}
		}
		if seen[k.Value] {
			return nil, &ParseError{Line: k.Line, Field: name, Message: "field is set more than once"}
		}
		seen[k.Value] = true
		fields = append(fields, field{key: k.Value, line: k.Line, value: v})
	}
	return fields, nil
}

func scalarString(n *yaml.Node, path string) (*rawString, error) {
	n = resolve(n)
	if n.Kind != yaml.ScalarNode {
		return nil, kindError(n, path, "a string")
	}
	return &rawString{value: n.Value, line: n.Line}, nil
}

func scalarBool(n *yaml.Node, path string) (bool, error) {
	n = resolve(n)
	var b bool
	if n.Kind != yaml.ScalarNode || n.Decode(&b) != nil {
		return false, &ParseError{Line: n.Line, Field: path, Message: fmt.Sprintf("expected true or false, got %q", n.Value)}
	}
	return b, nil
}

func stringList(n *yaml.Node, path string) ([]rawString, error) {
	n = resolve(n)
	if n.Kind != yaml.SequenceNode {
		return nil, kindError(n, path, "a list")
	}
	out := make([]rawString, 0, len(n.Content))
	for i, item := range n.Content {
		s, err := scalarString(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func kindError(n *yaml.Node, path, want string) error {
	return &ParseError{Line: n.Line, Field: path, Message: fmt.Sprintf("expected %s, got %s", want, kindName(n))}
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a list"
	case yaml.ScalarNode:
		return fmt.Sprintf("%q", n.Value)
	default:
		return "nothing"
	}
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func joinField(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func syntaxError(err error) error {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	line := 0
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[1])
		msg = strings.TrimSpace(strings.TrimPrefix(msg, m[0]+":"))
	}
	return &ParseError{Line: line, Message: msg}
}
