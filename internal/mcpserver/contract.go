package mcpserver

import (
	"encoding/json"

	"github.com/starford/ucdcanvas/internal/blocks"
)

// BlockSchemaURI names the block schema resource.
const BlockSchemaURI = "ucd://block-schema"

// blockContractRules are the editing rules that apply to every block.
var blockContractRules = []string{
	"Documents are addressed by project, stage and document id; every segment is required.",
	"A block's content may only hold the keys its schema lists; unknown keys are rejected.",
	"Enum fields accept exactly one of their options.",
	"Integer fields are clamped to their min..max range; fractions are truncated.",
	"Connections go from the source's output to the target's input. Self-loops and duplicate connections are rejected.",
	"Removing a block removes every connection touching it.",
	"Changes are kept in the open session until save_document is called.",
}

type blockDoc struct {
	Type           blocks.Type    `json:"type"`
	Title          string         `json:"title"`
	Icon           string         `json:"icon"`
	DefaultContent blocks.Content `json:"defaultContent"`
	Fields         []blocks.Field `json:"fields"`
}

type schemaDoc struct {
	Rules  []string   `json:"rules"`
	Blocks []blockDoc `json:"blocks"`
}

// BlockSchema describes every registered block type, in palette order,
// with the rules that govern editing them.
func BlockSchema(reg *blocks.Registry) ([]byte, error) {
	doc := schemaDoc{Rules: blockContractRules}
	for _, tpl := range reg.Templates() {
		doc.Blocks = append(doc.Blocks, blockDoc{
			Type:           tpl.Type,
			Title:          tpl.Title,
			Icon:           tpl.Icon,
			DefaultContent: tpl.DefaultContent,
			Fields:         blocks.SchemaFor(tpl.Type).Fields,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}
