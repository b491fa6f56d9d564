package gen

import (
	"time"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/fabrica/schema"
)

// tableRoutesFile emits routes_<table>.go.
func (e *Emitter) tableRoutesFile(t *schema.Table) *jen.File {
	f := e.newFile()
	name := pluralName(t.Name)

	f.Commentf("Register%sRoutes mounts the %s endpoints on a /v1 router.", name, t.Name)
	f.Func().Id("Register"+name+"Routes").Params(
		jen.Id("r").Qual(pkgChi, "Router"),
		jen.Id("rt").Op("*").Qual(pkgHTTPAPI, "Runtime"),
	).Block(
		jen.Id("rt").Dot("Resource").Call(jen.Lit(t.Name)).Dot("Register").Call(jen.Id("r")),
	)
	return f
}

// routesFile emits routes.go: the aggregate registrar and NewRuntime,
// with the generation-time configuration baked in. Secret sentinels
// become os.Getenv lookups; resolved values are never embedded.
func (e *Emitter) routesFile() *jen.File {
	f := e.newFile()
	cfg := e.cfg

	f.Comment("RegisterRoutes mounts every generated resource on a /v1 router.")
	f.Func().Id("RegisterRoutes").Params(
		jen.Id("r").Qual(pkgChi, "Router"),
		jen.Id("rt").Op("*").Qual(pkgHTTPAPI, "Runtime"),
	).BlockFunc(func(g *jen.Group) {
		for _, t := range e.model.Tables {
			g.Id("Register" + pluralName(t.Name) + "Routes").Call(jen.Id("r"), jen.Id("rt"))
		}
	})
	f.Line()

	opts := []jen.Code{
		jen.Qual(pkgHTTPAPI, "WithLimits").Call(jen.Lit(cfg.DefaultLimit), jen.Lit(cfg.MaxLimit)),
		jen.Qual(pkgHTTPAPI, "WithMaxIncludeDepth").Call(jen.Lit(cfg.MaxIncludeDepth)),
		jen.Qual(pkgHTTPAPI, "WithContract").Call(jen.Id("APIContract").Call(), jen.Id("manifest")),
	}
	if cfg.SoftDeleteColumn != "" {
		opts = append(opts, jen.Qual(pkgHTTPAPI, "WithSoftDelete").Call(jen.Lit(cfg.SoftDeleteColumn)))
	}
	if cfg.StrictIncludes {
		opts = append(opts, jen.Qual(pkgHTTPAPI, "WithStrictIncludes").Call(jen.True()))
	}
	if len(cfg.Auth.APIKeys) > 0 {
		args := []jen.Code{jen.Lit(cfg.Auth.APIKeyHeader)}
		for _, key := range cfg.Auth.APIKeys {
			args = append(args, jen.Qual("os", "Getenv").Call(jen.Lit(key.EnvName())))
		}
		opts = append(opts, jen.Qual(pkgHTTPAPI, "WithAPIKeys").Call(args...))
	}
	if cfg.Auth.JWT != nil && len(cfg.Auth.JWT.Services) > 0 {
		services := make([]jen.Code, len(cfg.Auth.JWT.Services))
		for i, svc := range cfg.Auth.JWT.Services {
			services[i] = jen.Values(jen.Dict{
				jen.Id("Issuer"): jen.Lit(svc.Issuer),
				jen.Id("Secret"): jen.Qual("os", "Getenv").Call(jen.Lit(svc.Secret.EnvName())),
			})
		}
		opts = append(opts, jen.Qual(pkgHTTPAPI, "WithJWT").Call(
			jen.Qual(pkgHTTPAPI, "JWTConfig").Values(jen.Dict{
				jen.Id("Audience"): jen.Lit(cfg.Auth.JWT.Audience),
				jen.Id("Services"): jen.Index().Qual(pkgHTTPAPI, "JWTService").Values(services...),
			}),
		))
	}
	if cfg.Auth.PullToken != "" {
		opts = append(opts, jen.Qual(pkgHTTPAPI, "WithPullToken").Call(
			jen.Qual("os", "Getenv").Call(jen.Lit(cfg.Auth.PullToken.EnvName())),
		))
	}

	f.Comment("NewRuntime builds the runtime over db with the generated model,")
	f.Comment("graph and configuration. Extra options are applied last and win.")
	f.Func().Id("NewRuntime").Params(
		jen.Id("db").Op("*").Qual("database/sql", "DB"),
		jen.Id("opts").Op("...").Qual(pkgHTTPAPI, "Option"),
	).Params(jen.Op("*").Qual(pkgHTTPAPI, "Runtime"), jen.Error()).Block(
		jen.List(jen.Id("manifest"), jen.Id("err")).Op(":=").Id("SDKManifest").Call(),
		jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Id("base").Op(":=").Index().Qual(pkgHTTPAPI, "Option").Values(opts...),
		jen.Return(jen.Qual(pkgHTTPAPI, "New").Call(
			jen.Id("db"),
			jen.Id("Model").Call(),
			jen.Id("Graph").Call(),
			jen.Append(jen.Id("base"), jen.Id("opts").Op("...")).Op("..."),
		)),
	)
	return f
}

// manifestFile emits manifest.go: version constants, the embedded
// client bundle and the contract/manifest accessors.
func (e *Emitter) manifestFile(clientSrc map[string]string) *jen.File {
	f := e.newFile()

	f.Comment("Version is the fabrica version that generated this package.")
	f.Const().Id("Version").Op("=").Lit(e.version)
	f.Line()
	f.Comment("GeneratedAt records when generation ran, RFC 3339 UTC.")
	f.Const().Id("GeneratedAt").Op("=").Lit(e.now.Format(time.RFC3339))
	f.Line()

	files := jen.Dict{}
	for path, src := range clientSrc {
		files[jen.Lit(path)] = jen.Lit(src)
	}
	f.Comment("sdkFiles is the embedded client SDK bundle served by /_psdk.")
	f.Var().Id("sdkFiles").Op("=").Map(jen.String()).String().Values(files)
	f.Line()

	f.Comment("SDKManifest returns the embedded SDK bundle.")
	f.Func().Id("SDKManifest").Params().Params(jen.Op("*").Qual(pkgContract, "Manifest"), jen.Error()).Block(
		jen.List(jen.Id("ts"), jen.Id("err")).Op(":=").Qual("time", "Parse").Call(jen.Qual("time", "RFC3339"), jen.Id("GeneratedAt")),
		jen.If(jen.Id("err").Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Id("err"))),
		jen.Return(jen.Qual(pkgContract, "BuildManifest").Call(jen.Id("sdkFiles"), jen.Id("Version"), jen.Id("ts"))),
	)
	f.Line()

	f.Comment("APIContract returns the contract document served by /api/contract.")
	f.Func().Id("APIContract").Params().Op("*").Qual(pkgContract, "Contract").Block(
		jen.List(jen.Id("ts"), jen.Id("_")).Op(":=").Qual("time", "Parse").Call(jen.Qual("time", "RFC3339"), jen.Id("GeneratedAt")),
		jen.Return(jen.Qual(pkgContract, "Build").Call(jen.Id("Model").Call(), jen.Id("Graph").Call(), jen.Id("Version"), jen.Id("ts"))),
	)
	return f
}
