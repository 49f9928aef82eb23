package adapters

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
)

// DebianCodenames are the releases a distributions file declares.
var DebianCodenames = []string{
	"bookworm",
	"bullseye",
	"buster",
	"sid",
	"stretch",
	"jessie",
	"wheezy",
	"squeeze",
	"precise",
	"quantal",
	"saucy",
	"trusty",
	"utopic",
	"vivid",
	"wily",
	"xenial",
	"bionic",
	"focal",
	"jammy",
}

type DistributionsFileAdapter struct {
	Root      string
	Codenames []string
}

func NewDistributionsFileAdapter(root string) DistributionsFileAdapter {
	return DistributionsFileAdapter{Root: root, Codenames: DebianCodenames}
}

// WriteDistributions renders <root>/<project>/distributions and returns
// the project directory, which reprepro takes as its confdir.
func (a DistributionsFileAdapter) WriteDistributions(ctx context.Context, project string, fields map[string]string) (string, error) {
	if strings.TrimSpace(a.Root) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("distributions root is empty")
	}
	if strings.TrimSpace(project) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("project is empty")
	}
	confDir := filepath.Join(a.Root, project)
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create distributions directory").
			WithCause(err)
	}
	target := filepath.Join(confDir, "distributions")
	tmp, err := os.CreateTemp(confDir, ".distributions-*")
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create distributions file").
			WithCause(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(RenderDistributions(a.Codenames, fields)); err != nil {
		_ = tmp.Close()
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write distributions file").
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write distributions file").
			WithCause(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to replace distributions file").
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("project", project).Str("path", target).Msg("distributions file written")
	return confDir, nil
}

// RenderDistributions emits one stanza per codename with the given fields
// in a stable order.
func RenderDistributions(codenames []string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if strings.EqualFold(key, "Codename") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, codename := range codenames {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Codename: ")
		b.WriteString(codename)
		b.WriteString("\n")
		for _, key := range keys {
			b.WriteString(key)
			b.WriteString(":")
			if value := strings.TrimSpace(fields[key]); value != "" {
				b.WriteString(" ")
				b.WriteString(value)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

var _ ports.DistributionsPort = DistributionsFileAdapter{}
