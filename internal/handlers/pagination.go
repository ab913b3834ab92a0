package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxPageLimit = 200

var errInvalidPagination = errors.New("invalid pagination params")

func parsePaginationParams(pageStr, limitStr string) (int, int, error) {
	page := 1
	limit := 20

	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 1 {
			return 0, 0, errInvalidPagination
		}
		page = p
	}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > maxPageLimit {
			return 0, 0, errInvalidPagination
		}
		limit = l
	}

	return page, limit, nil
}

// pageBounds returns the slice bounds for the requested page of total items.
// Without page and limit the whole list is returned. The total is exposed in
// the X-Total-Count header either way.
func pageBounds(c *gin.Context, total int) (int, int, error) {
	c.Header("X-Total-Count", strconv.Itoa(total))

	pageStr := strings.TrimSpace(c.Query("page"))
	limitStr := strings.TrimSpace(c.Query("limit"))
	if pageStr == "" && limitStr == "" {
		return 0, total, nil
	}

	page, limit, err := parsePaginationParams(pageStr, limitStr)
	if err != nil {
		return 0, 0, err
	}

	lo := (page - 1) * limit
	if lo > total {
		lo = total
	}
	hi := lo + limit
	if hi > total {
		hi = total
	}
	return lo, hi, nil
}
