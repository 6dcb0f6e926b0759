package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/middleware"
	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

// currentUserID returns the authenticated user or an unauthorized error.
func currentUserID(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID() == "" {
		return "", appErrors.ErrUnauthorized
	}
	return claims.UserID(), nil
}

// int64Param parses a positive numeric path parameter.
func int64Param(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}

// scope resolves the caller and the listed numeric path parameters, in order.
func scope(c *gin.Context, params ...string) (string, []int64, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return "", nil, err
	}
	ids := make([]int64, len(params))
	for i, name := range params {
		if ids[i], err = int64Param(c, name); err != nil {
			return "", nil, err
		}
	}
	return userID, ids, nil
}
