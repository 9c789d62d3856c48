// Package pgrepos implements the domain repositories on Postgres via sqlx.
package pgrepos

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tmkamba/kanisa/core"
)

var orderFieldRegex = regexp.MustCompile(`^[a-z_]+$`)

func itoa(n int) string {
	return strconv.Itoa(n)
}

// orderBy renders an ORDER BY clause from the requested orderings, falling back
// to `def`. Fields that are not plain identifiers are discarded.
func orderBy(ordering []core.DBOrdering, def string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !orderFieldRegex.MatchString(ord.Field) {
			continue
		}
		orderList = append(orderList, ord.String())
	}
	if len(orderList) == 0 {
		return " ORDER BY " + def
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}
