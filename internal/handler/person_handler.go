package handler

import (
	"net/http"
	"strings"

	"histai-go/internal/personinfo"
	"histai-go/internal/service"
	"histai-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// PersonHandler 负责历史人物的列表、检索与补全。
type PersonHandler struct {
	personService service.PersonService
}

// NewPersonHandler 创建一个新的 PersonHandler 实例。
func NewPersonHandler(personService service.PersonService) *PersonHandler {
	return &PersonHandler{personService: personService}
}

// List 分页返回人物，带 q 时走检索。
func (h *PersonHandler) List(c *gin.Context) {
	page, err := h.personService.List(c.Request.Context(), service.PersonQuery{
		Q:           c.Query("q"),
		Era:         c.Query("era"),
		Category:    c.Query("category"),
		Limit:       queryInt(c, "limit", 50),
		Offset:      queryInt(c, "offset", 0),
		UseInternet: c.Query("useInternet") == "true",
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "success", page)
}

// Search 检索人物，默认允许联网补充。
func (h *PersonHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if err := personinfo.ValidateSearchQuery(q); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	useInternet := c.DefaultQuery("useInternet", "true") != "false"
	persons, err := h.personService.Search(c.Request.Context(), q, useInternet, clampLimit(queryInt(c, "limit", 20), maxSearchLimit))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	log.Infof("[PersonHandler] 检索 %q 返回 %d 条", q, len(persons))
	respondOK(c, "success", gin.H{"persons": persons, "fromInternet": useInternet})
}

// Autocomplete 返回名称补全候选。
func (h *PersonHandler) Autocomplete(c *gin.Context) {
	suggestions, err := h.personService.Autocomplete(c.Request.Context(), c.Query("q"), clampLimit(queryInt(c, "limit", 5), maxSearchLimit))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"suggestions": suggestions})
}
