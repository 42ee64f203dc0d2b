package http

import (
	"golang.org/x/net/context"

	"github.com/tapglue/nexus/core"
)

const (
	ctxKeyNamespace = "namespace"
	ctxKeyOrigin    = "origin"
	ctxKeyRoute     = "route"
	ctxKeyVersion   = "version"
)

func namespaceFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyNamespace).(string)
}

func namespaceInContext(ctx context.Context, ns string) context.Context {
	return context.WithValue(ctx, ctxKeyNamespace, ns)
}

func originFromContext(ctx context.Context) core.Origin {
	return ctx.Value(ctxKeyOrigin).(core.Origin)
}

func originInContext(ctx context.Context, origin core.Origin) context.Context {
	return context.WithValue(ctx, ctxKeyOrigin, origin)
}

func routeFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyRoute).(string)
}

func routeInContext(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, ctxKeyRoute, route)
}

func versionFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyVersion).(string)
}

func versionInContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxKeyVersion, version)
}
