package handler

import (
	"context"
	"errors"
	"net/http"

	"gymdesk/internal/apierror"
	"gymdesk/internal/backend"
	"gymdesk/internal/middleware"
	"gymdesk/internal/reconcile"
	"gymdesk/internal/service"
	"gymdesk/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validation.New()

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false after writing the error response; the caller returns at once.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("invalid_json", "JSON invalido: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// operator reads the authenticated operator set by middleware.JWTAuth.
func operator(c *gin.Context) service.Operator {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return service.Operator{}
	}
	return service.Operator{UserID: claims.UserID, Username: claims.Username}
}

// backendCtx carries the operator's token so the backend sees the same user.
func backendCtx(c *gin.Context) context.Context {
	return backend.WithToken(c.Request.Context(), middleware.GetToken(c))
}

// writeError maps domain errors onto the apierror envelope. Anything it does
// not recognise is handed to middleware.ErrorHandler as a 500.
func writeError(c *gin.Context, err error) {
	var ve *reconcile.ValidationError
	switch {
	case errors.As(err, &ve):
		resp := &apierror.ValidationError{Detail: validationDetail(ve.Reason), Code: ve.Reason}
		if ve.Field != "" {
			resp.Fields = map[string]string{ve.Field: ve.Reason}
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
	case errors.Is(err, backend.ErrSummaryUnavailable):
		c.JSON(http.StatusServiceUnavailable, apierror.WithCode("summary_unavailable",
			"No se pudo obtener el resumen de ventas del turno. Intente de nuevo."))
	case errors.Is(err, backend.ErrPersistence):
		c.JSON(http.StatusBadGateway, apierror.WithCode("persistence_failed",
			"No se pudo guardar el cierre. Su conteo quedo guardado; intente de nuevo."))
	case errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.WithCode("not_found", "Cierre no encontrado"))
	case errors.Is(err, service.ErrNoDraft):
		c.JSON(http.StatusNotFound, apierror.WithCode("no_draft", err.Error()))
	default:
		_ = c.Error(err)
	}
}

func validationDetail(reason string) string {
	switch reason {
	case reconcile.ReasonMissingShiftStart:
		return "Falta la hora de inicio del turno"
	case reconcile.ReasonNegativeCount:
		return "Los montos contados no pueden ser negativos"
	case reconcile.ReasonMissingDiscrepancyNotes:
		return "Explique la diferencia encontrada en el conteo"
	default:
		return "Error de validacion"
	}
}
