package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// legacyOAuthKeys maps client settings accepted at the top level by older layouts,
// in either spelling, to their key under the oauth section.
var legacyOAuthKeys = map[string]string{
	"client-id":              "client-id",
	"client_id":              "client-id",
	"client-secret":          "client-secret",
	"client_secret":          "client-secret",
	"redirect-uri":           "redirect-uri",
	"redirect_uri":           "redirect-uri",
	"scope":                  "scope",
	"authorization-endpoint": "authorization-endpoint",
	"authorization_endpoint": "authorization-endpoint",
	"token-endpoint":         "token-endpoint",
	"token_endpoint":         "token-endpoint",
}

// snakeOAuthKeys renames snake_case keys found inside the oauth section.
var snakeOAuthKeys = map[string]string{
	"client_id":              "client-id",
	"client_secret":          "client-secret",
	"redirect_uri":           "redirect-uri",
	"authorization_endpoint": "authorization-endpoint",
	"token_endpoint":         "token-endpoint",
	"use_state":              "use-state",
	"use_pkce":               "use-pkce",
	"authorization_timeout":  "authorization-timeout",
	"request_timeout":        "request-timeout",
	"refresh_lead":           "refresh-lead",
	"auto_refresh":           "auto-refresh",
}

// MigrateLegacyLayout rewrites configFile in place when it still uses the flat layout
// (client settings at the top level) or snake_case keys. Returns true if the file was
// rewritten. Missing, empty or unparsable files are left alone for LoadConfig to report.
//
// Migration flow:
// 1. Move top-level client settings under oauth, unless oauth already sets the key
// 2. Rename snake_case keys inside oauth
func MigrateLegacyLayout(configFile string) (bool, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}

	// Parse YAML into node tree to preserve comments and ordering
	var root yaml.Node
	if err = yaml.Unmarshal(data, &root); err != nil {
		return false, nil
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return false, nil
	}
	rootMap := root.Content[0]
	if rootMap == nil || rootMap.Kind != yaml.MappingNode {
		return false, nil
	}

	changed := false
	oauthNode := mapValue(rootMap, "oauth")
	if oauthNode != nil && oauthNode.Kind != yaml.MappingNode {
		// An empty "oauth:" section decodes as null.
		if oauthNode.Kind != yaml.ScalarNode || oauthNode.Tag != "!!null" {
			return false, nil
		}
		oauthNode.Kind, oauthNode.Tag, oauthNode.Value = yaml.MappingNode, "!!map", ""
	}
	for i := 0; i+1 < len(rootMap.Content); {
		key := rootMap.Content[i].Value
		target, ok := legacyOAuthKeys[key]
		if !ok {
			i += 2
			continue
		}
		if oauthNode == nil {
			oauthNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			rootMap.Content = append(rootMap.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "oauth"},
				oauthNode,
			)
		}
		if findMapKeyIndex(oauthNode, target) < 0 {
			keyNode := rootMap.Content[i]
			keyNode.Value = target
			oauthNode.Content = append(oauthNode.Content, keyNode, rootMap.Content[i+1])
		}
		removeMapKeyByIndex(rootMap, i)
		changed = true
	}

	if oauthNode != nil && oauthNode.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(oauthNode.Content); i += 2 {
			keyNode := oauthNode.Content[i]
			renamed, ok := snakeOAuthKeys[keyNode.Value]
			if !ok {
				continue
			}
			if findMapKeyIndex(oauthNode, renamed) >= 0 {
				removeMapKeyByIndex(oauthNode, i)
				i -= 2
			} else {
				keyNode.Value = renamed
			}
			changed = true
		}
	}

	if !changed {
		return false, nil
	}
	return writeYAMLNode(configFile, &root)
}

// findMapKeyIndex returns the index of key in a mapping node, or -1.
func findMapKeyIndex(mapNode *yaml.Node, key string) int {
	if mapNode == nil || mapNode.Kind != yaml.MappingNode {
		return -1
	}
	for i := 0; i+1 < len(mapNode.Content); i += 2 {
		if strings.EqualFold(mapNode.Content[i].Value, key) {
			return i
		}
	}
	return -1
}

func mapValue(mapNode *yaml.Node, key string) *yaml.Node {
	idx := findMapKeyIndex(mapNode, key)
	if idx < 0 {
		return nil
	}
	return mapNode.Content[idx+1]
}

// removeMapKeyByIndex removes a key-value pair from a mapping node by index
func removeMapKeyByIndex(mapNode *yaml.Node, keyIdx int) {
	if mapNode == nil || mapNode.Kind != yaml.MappingNode {
		return
	}
	if keyIdx < 0 || keyIdx+1 >= len(mapNode.Content) {
		return
	}
	mapNode.Content = append(mapNode.Content[:keyIdx], mapNode.Content[keyIdx+2:]...)
}

// writeYAMLNode writes the YAML node tree back to file
func writeYAMLNode(configFile string, root *yaml.Node) (bool, error) {
	f, err := os.Create(configFile)
	if err != nil {
		return false, err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return false, err
	}
	if err := enc.Close(); err != nil {
		return false, err
	}
	return true, nil
}
