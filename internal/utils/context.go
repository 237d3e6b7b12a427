package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource   string
	TenantToken string
	DistinctId  string
	Admin       bool
}

var customContextKey = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource:   appSource,
		TenantToken: c.GetString("TenantToken"),
		DistinctId:  c.GetString("DistinctId"),
		Admin:       c.GetBool("IsAdmin"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetTenantTokenFromContext(ctx context.Context) string {
	return GetContext(ctx).TenantToken
}

func GetDistinctIdFromContext(ctx context.Context) string {
	return GetContext(ctx).DistinctId
}

func IsAdminFromContext(ctx context.Context) bool {
	return GetContext(ctx).Admin
}

func SetAppSourceInContext(ctx context.Context, appSource string) context.Context {
	customContext := GetContext(ctx)
	customContext.AppSource = appSource
	return WithCustomContext(ctx, customContext)
}
