package router

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// APIModule 业务模块实现它即可挂到 engine 上
type APIModule interface{ MountAPI(*gin.RouterGroup) }

// 可选：实现该接口可控制挂载顺序（数值越小越先挂）
// 不实现则默认 100
type prioritizer interface{ Priority() int }

// MountAllAPI 按优先级挂载模块
func MountAllAPI(g *gin.RouterGroup, mods ...APIModule) {
	mods = append([]APIModule(nil), mods...)
	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAPI(g)
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}
