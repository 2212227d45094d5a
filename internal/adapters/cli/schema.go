package cli

import (
	"fmt"

	"warehouse-ledger/internal/app"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// payloadSchemas maps a stdin-driven command to the payload it decodes.
var payloadSchemas = map[string]func() any{
	"move":    func() any { return app.MoveRequest{} },
	"putaway": func() any { return app.PutawayRequest{} },
}

// payloadSchema reflects the JSON Schema of a command's stdin payload.
func payloadSchema(name string) (*jsonschema.Schema, error) {
	mk, ok := payloadSchemas[name]
	if !ok {
		return nil, fmt.Errorf("no payload schema for %q (available: move, putaway)", name)
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(mk()), nil
}

func newSchemaCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:       "schema <move|putaway>",
		Short:     "Print the JSON Schema of a command's stdin payload",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"move", "putaway"},
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := payloadSchema(args[0])
			if err != nil {
				return err
			}
			return writeJSON(env.Out, schema)
		},
	}
}
