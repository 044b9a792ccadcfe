package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/orrery/internal/scene"
	"github.com/signalsfoundry/orrery/model"
)

type handlers struct {
	scene *scene.Manager
}

// PlanetView is a loaded descriptor with its resolved appearance.
type PlanetView struct {
	Name   string        `json:"name"`
	Radius float64       `json:"radius"`
	Color  string        `json:"color"`
	Speed  float64       `json:"speed"`
	Orbit  []model.Point `json:"orbit"`
}

// StateView summarises the lifecycle.
type StateView struct {
	Phase  string `json:"phase"`
	Tick   uint64 `json:"tick"`
	Bodies int    `json:"bodies"`
}

func (h *handlers) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handlers) getScene(c *gin.Context) {
	c.JSON(http.StatusOK, scene.BuildFrame(h.scene))
}

func (h *handlers) getState(c *gin.Context) {
	snap := h.scene.Snapshot()
	view := StateView{Phase: snap.State.Phase().String(), Tick: snap.Tick}
	if p, ok := snap.State.(scene.Populated); ok {
		view.Bodies = len(p.Bodies)
	}
	c.JSON(http.StatusOK, view)
}

// rejectWhileLoading answers 503 until the planet list is known.
func (h *handlers) rejectWhileLoading(c *gin.Context) bool {
	if _, loading := h.scene.State().(scene.Loading); !loading {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "planets are still loading"})
	return true
}

func (h *handlers) getPlanets(c *gin.Context) {
	if h.rejectWhileLoading(c) {
		return
	}
	views := h.planetViews()
	c.JSON(http.StatusOK, gin.H{
		"data":  views,
		"count": len(views),
	})
}

func (h *handlers) getPlanetByName(c *gin.Context) {
	if h.rejectWhileLoading(c) {
		return
	}
	name := c.Param("name")
	for _, v := range h.planetViews() {
		if strings.EqualFold(v.Name, name) {
			c.JSON(http.StatusOK, gin.H{"data": v})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "planet not found"})
}

func (h *handlers) planetViews() []PlanetView {
	tables := h.scene.Tables()
	planets := h.scene.Planets()
	views := make([]PlanetView, 0, len(planets))
	for _, p := range planets {
		views = append(views, PlanetView{
			Name:   p.Name,
			Radius: p.Radius,
			Color:  tables.Colors.Hex(p.Name),
			Speed:  tables.Speeds.Lookup(p.Name),
			Orbit:  p.Orbit,
		})
	}
	return views
}
