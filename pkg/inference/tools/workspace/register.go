package workspace

import (
	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/pkg/errors"
)

type options struct {
	withSQL    bool
	withDelete bool
}

type Option func(*options)

// WithSQL registers sql_query. It only succeeds at run time if the execution context carries a DB.
func WithSQL(enabled bool) Option {
	return func(o *options) { o.withSQL = enabled }
}

func WithDelete(enabled bool) Option {
	return func(o *options) { o.withDelete = enabled }
}

// Definitions returns the workspace tool set.
func Definitions(opts ...Option) ([]*tools.ToolDefinition, error) {
	o := options{withDelete: true}
	for _, opt := range opts {
		opt(&o)
	}

	var defs []*tools.ToolDefinition
	add := func(def *tools.ToolDefinition, err error) error {
		if err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	}

	errs := []error{
		add(tools.NewTool(ReadFileName,
			"Read a file from the workspace. Always read a file before editing it.",
			readFile, tools.WithKind(tools.ToolKindRead), tools.WithPathArg("path"), tools.WithTags("fs"))),
		add(tools.NewTool(CreateFileName,
			"Create a new file. Fails if the file already exists.",
			createFile, tools.WithKind(tools.ToolKindCreate), tools.WithPathArg("path"), tools.WithTags("fs"))),
		add(tools.NewTool(WriteFileName,
			"Write a file, replacing its content if it exists.",
			writeFile, tools.WithKind(tools.ToolKindWrite), tools.WithPathArg("path"), tools.WithTags("fs"))),
		add(tools.NewTool(EditFileName,
			"Replace old_string with new_string in an existing file. Provide an anchor when old_string is not unique.",
			editFile, tools.WithKind(tools.ToolKindEdit), tools.WithPathArg("path"), tools.WithTags("fs"))),
		add(tools.NewTool(ListFilesName,
			"List files in a workspace directory.",
			listFiles, tools.WithTags("fs"))),
		add(tools.NewTool(SearchName,
			"Search workspace files with a regular expression.",
			searchFiles, tools.WithTags("fs"))),
	}
	if o.withDelete {
		errs = append(errs, add(tools.NewTool(DeleteFileName,
			"Delete a file from the workspace.",
			deleteFile, tools.WithKind(tools.ToolKindDelete), tools.WithPathArg("path"), tools.WithTags("fs"))))
	}
	if o.withSQL {
		errs = append(errs, add(tools.NewTool(SQLQueryName,
			"Run a read-only SQL query against the application database.",
			sqlQuery, tools.WithTags("db"))))
	}
	for _, err := range errs {
		if err != nil {
			return nil, errors.Wrap(err, "build workspace tools")
		}
	}
	return defs, nil
}

// Register adds the workspace tool set to reg.
func Register(reg *tools.InMemoryToolRegistry, opts ...Option) error {
	defs, err := Definitions(opts...)
	if err != nil {
		return err
	}
	return reg.Register(defs...)
}
