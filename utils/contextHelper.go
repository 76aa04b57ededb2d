package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/recon_backend/appctx"
	"github.com/google/uuid"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyActorLogin    = appctx.ContextKeyActorLogin
	ContextKeyActorRoles    = appctx.ContextKeyActorRoles
	ContextKeySourceIp      = appctx.ContextKeySourceIp
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetActorLoginFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorLogin)
}

func GetActorRolesFromContext(ctx context.Context) ([]string, bool) {
	return appctx.GetStrings(ctx, ContextKeyActorRoles)
}

func GetSourceIpFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeySourceIp)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetActorLoginInContext(ctx context.Context, login string) context.Context {
	return appctx.Set(ctx, ContextKeyActorLogin, login)
}

func SetActorRolesInContext(ctx context.Context, roles []string) context.Context {
	return appctx.Set(ctx, ContextKeyActorRoles, roles)
}

func SetSourceIpInContext(ctx context.Context, ip string) context.Context {
	return appctx.Set(ctx, ContextKeySourceIp, ip)
}

func SetCorrelationIdInContext(ctx context.Context, id string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, id)
}

func CorrelationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
