package handler

import (
	"net/http"

	"gymdesk/internal/dto"
	"gymdesk/internal/service"

	"github.com/gin-gonic/gin"
)

type CierreHandler struct{ svc service.CierreService }

func NewCierreHandler(svc service.CierreService) *CierreHandler { return &CierreHandler{svc: svc} }

// Resumen godoc
// @Summary Resumen de ventas del turno con items vendidos
// @Tags cierre
// @Produce json
// @Security BearerAuth
// @Param shift_start query string true "Inicio del turno (ISO 8601)"
// @Success 200 {object} dto.ResumenResponse
// @Failure 422 {object} apierror.ValidationError
// @Failure 503 {object} apierror.APIError
// @Router /v1/cierre/resumen [get]
func (h *CierreHandler) Resumen(c *gin.Context) {
	resp, err := h.svc.Resumen(backendCtx(c), operator(c), c.Query("shift_start"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Preview godoc
// @Summary Calcula diferencias y desvio sin cerrar; guarda el borrador
// @Tags cierre
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CierreRequest true "Conteo fisico"
// @Success 200 {object} dto.PreviewResponse
// @Failure 422 {object} apierror.ValidationError
// @Failure 503 {object} apierror.APIError
// @Router /v1/cierre/preview [post]
func (h *CierreHandler) Preview(c *gin.Context) {
	var req dto.CierreRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Preview(backendCtx(c), operator(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cerrar godoc
// @Summary Registra el cierre de caja del turno
// @Tags cierre
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CierreRequest true "Conteo fisico"
// @Success 201 {object} dto.CierreResponse
// @Failure 422 {object} apierror.ValidationError
// @Failure 502 {object} apierror.APIError
// @Failure 503 {object} apierror.APIError
// @Router /v1/cierre [post]
func (h *CierreHandler) Cerrar(c *gin.Context) {
	var req dto.CierreRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Cerrar(backendCtx(c), operator(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Hoy godoc
// @Summary Cierre de hoy del operador, o null si aun no cerro
// @Tags cierre
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CierreResponse
// @Failure 502 {object} apierror.APIError
// @Router /v1/cierre/hoy [get]
func (h *CierreHandler) Hoy(c *gin.Context) {
	resp, err := h.svc.Hoy(backendCtx(c), operator(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Borrador godoc
// @Summary Ultimo conteo guardado del turno
// @Tags cierre
// @Produce json
// @Security BearerAuth
// @Param shift_start query string false "Inicio del turno (ISO 8601); por defecto hoy"
// @Success 200 {object} dto.BorradorResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cierre/borrador [get]
func (h *CierreHandler) Borrador(c *gin.Context) {
	resp, err := h.svc.Borrador(c.Request.Context(), operator(c), c.Query("shift_start"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PDF godoc
// @Summary Descarga el PDF del cierre
// @Tags cierre
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "ID del cierre"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/cierre/{id}/pdf [get]
func (h *CierreHandler) PDF(c *gin.Context) {
	id := c.Param("id")
	body, contentType, err := h.svc.PDF(backendCtx(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, contentType, body, map[string]string{
		"Content-Disposition": `inline; filename="cierre-` + id + `.pdf"`,
	})
}
