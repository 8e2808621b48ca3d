package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue values built from one Context are not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest: compile schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
		schemaErr = schemaDef.Err()
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks decoded manifest data against the kuri.toml schema.
// Unknown keys are rejected.
func Validate(raw map[string]any) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %s", cueerrors.Details(err, nil))
	}
	return nil
}
