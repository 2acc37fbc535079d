package assemble

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/d2c/internal/core/convert"
)

// =============================================================================
// Rendering
// =============================================================================

const yamlIndent = 2

// Render encodes a document as compose YAML. Top-level keys are services
// then networks, each followed by a blank line. Output is byte-identical for
// identical documents.
func Render(doc Document) ([]byte, error) {
	sections := []*yaml.Node{
		mapping(pair("services", servicesNode(doc.Services))),
	}
	if len(doc.Networks) > 0 {
		sections = append(sections, mapping(pair("networks", networksNode(doc.Networks))))
	}

	var buf bytes.Buffer
	for _, section := range sections {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(yamlIndent)
		if err := enc.Encode(section); err != nil {
			return nil, fmt.Errorf("render %s: %w", doc.Filename, err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("render %s: %w", doc.Filename, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func servicesNode(services []Service) *yaml.Node {
	node := mapping()
	for _, s := range services {
		node.Content = append(node.Content, str(s.Key), serviceNode(s.Descriptor))
	}
	return node
}

// serviceNode lays out fields in their fixed output order.
func serviceNode(d convert.ServiceDescriptor) *yaml.Node {
	node := mapping()
	add := func(key string, value *yaml.Node) {
		if value != nil {
			node.Content = append(node.Content, str(key), value)
		}
	}

	add("container_name", optStr(d.ContainerName))
	add("image", optStr(d.Image))
	add("restart", optStr(d.Restart))
	add("ports", strList(d.Ports))
	add("environment", envNode(d))
	add("volumes", strList(d.Volumes))
	if d.NetworkMode != "" {
		add("network_mode", str(d.NetworkMode))
	} else {
		add("networks", serviceNetworksNode(d))
	}
	add("links", strList(d.Links))
	if d.Privileged {
		add("privileged", boolean(true))
	}
	add("devices", strList(d.Devices))
	add("labels", labelsNode(d.Labels))
	add("cap_add", strList(d.CapAdd))
	add("security_opt", strList(d.SecurityOpt))
	add("extra_hosts", strList(d.ExtraHosts))
	add("entrypoint", argsNode(d.Entrypoint))
	add("command", argsNode(d.Command))
	add("healthcheck", healthcheckNode(d.Healthcheck))
	add("depends_on", strList(d.DependsOn))
	return node
}

func envNode(d convert.ServiceDescriptor) *yaml.Node {
	if len(d.Environment) == 0 {
		return nil
	}
	node := mapping()
	for _, e := range d.Environment {
		node.Content = append(node.Content, str(e.Key), str(e.Value))
	}
	return node
}

func serviceNetworksNode(d convert.ServiceDescriptor) *yaml.Node {
	if len(d.Networks) == 0 {
		return nil
	}
	if !d.NetworksAsMap() {
		names := make([]string, 0, len(d.Networks))
		for _, n := range d.Networks {
			names = append(names, n.Name)
		}
		return strList(names)
	}

	node := mapping()
	for _, n := range d.Networks {
		settings := mapping()
		if n.IPv4Address != "" {
			settings.Content = append(settings.Content, str("ipv4_address"), str(n.IPv4Address))
		}
		if n.IPv6Address != "" {
			settings.Content = append(settings.Content, str("ipv6_address"), str(n.IPv6Address))
		}
		if n.MacAddress != "" {
			settings.Content = append(settings.Content, str("mac_address"), str(n.MacAddress))
		}
		node.Content = append(node.Content, str(n.Name), settings)
	}
	return node
}

func labelsNode(labels map[string]string) *yaml.Node {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	node := mapping()
	for _, k := range keys {
		node.Content = append(node.Content, str(k), str(labels[k]))
	}
	return node
}

func argsNode(args convert.Args) *yaml.Node {
	if len(args) == 0 {
		return nil
	}
	if s, ok := args.Scalar(); ok {
		return str(s)
	}
	return strList(args)
}

func healthcheckNode(hc *convert.HealthcheckBlock) *yaml.Node {
	if hc == nil || hc.IsEmpty() {
		return nil
	}
	node := mapping()
	if test := argsNode(hc.Test); test != nil {
		node.Content = append(node.Content, str("test"), test)
	}
	for _, kv := range [][2]string{
		{"interval", hc.Interval},
		{"timeout", hc.Timeout},
		{"start_period", hc.StartPeriod},
	} {
		if kv[1] != "" {
			node.Content = append(node.Content, str(kv[0]), str(kv[1]))
		}
	}
	if hc.Retries > 0 {
		node.Content = append(node.Content, str("retries"), integer(hc.Retries))
	}
	if hc.Disable {
		node.Content = append(node.Content, str("disable"), boolean(true))
	}
	return node
}

func networksNode(decls []NetworkDeclaration) *yaml.Node {
	node := mapping()
	for _, n := range decls {
		value := mapping()
		if n.External {
			value.Content = append(value.Content, str("external"), boolean(true))
		}
		node.Content = append(node.Content, str(n.Name), value)
	}
	return node
}

// =============================================================================
// Node Helpers
// =============================================================================

func mapping(content ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: content}
}

// pair flattens a key and value for mapping.
func pair(key string, value *yaml.Node) (*yaml.Node, *yaml.Node) {
	return str(key), value
}

// str builds a string scalar. Words read as booleans by YAML 1.1 parsers are
// quoted as well.
func str(s string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if isLegacyBool(s) {
		node.Style = yaml.DoubleQuotedStyle
	}
	return node
}

func isLegacyBool(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "n", "no", "on", "off":
		return true
	}
	return false
}

func optStr(s string) *yaml.Node {
	if s == "" {
		return nil
	}
	return str(s)
}

func integer(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

func boolean(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func strList(items []string) *yaml.Node {
	if len(items) == 0 {
		return nil
	}
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		node.Content = append(node.Content, str(item))
	}
	return node
}
