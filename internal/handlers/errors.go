package handlers

import (
	"net/http"

	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is sent with CONFLICT_RETRYABLE responses.
const retryAfterSeconds = "1"

// respondServiceError renders a service failure. Typed errors keep their
// message and details; anything else is logged and reported as a 500.
func respondServiceError(c *gin.Context, err error, action string) {
	appErr, ok := apperrors.As(err)
	if !ok {
		utils.LogError(err, action+": unexpected error", map[string]interface{}{"path": c.FullPath()})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to "+action+".", "Internal error"))
		return
	}

	status, code := statusForKind(appErr.Kind)
	if appErr.Kind == apperrors.ErrConflictRetryable {
		c.Header("Retry-After", retryAfterSeconds)
	}

	utils.LogWarn(err, action+": request rejected", map[string]interface{}{"path": c.FullPath(), "status": status})

	var details interface{}
	if d := appErr.Details(); len(d) > 0 {
		details = d
	}
	utils.RespondWithError(c, utils.NewAPIError(status, code, appErr.Error(), details))
}

func statusForKind(kind error) (int, string) {
	switch kind {
	case apperrors.ErrNotFound:
		return http.StatusNotFound, utils.ErrCodeNotFound
	case apperrors.ErrInvalidTransition:
		return http.StatusConflict, utils.ErrCodeInvalidTransition
	case apperrors.ErrPreconditionFailed:
		return http.StatusUnprocessableEntity, utils.ErrCodePreconditionFailed
	case apperrors.ErrInsufficientStock:
		return http.StatusConflict, utils.ErrCodeInsufficientStock
	case apperrors.ErrConflictRetryable:
		return http.StatusConflict, utils.ErrCodeConflictRetryable
	case apperrors.ErrValidation:
		return http.StatusBadRequest, utils.ErrCodeValidationFailed
	default:
		return http.StatusInternalServerError, utils.ErrCodeInternalServerError
	}
}

// pathID reads a positive integer path parameter, replying 400 when it is malformed.
func pathID(c *gin.Context, name, label string) (int64, bool) {
	id, err := utils.ParsePositiveID(c.Param(name))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+label+" ID format.", err.Error()))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}, action string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.LogError(err, action+": Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req interface{}, action string) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		utils.LogError(err, action+": Failed to bind query")
		utils.RespondValidationFailed(c, err.Error())
		return false
	}
	return true
}

func paginated(c *gin.Context, data interface{}, total, page, pageSize int) {
	c.JSON(http.StatusOK, gin.H{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
