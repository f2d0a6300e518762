package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"taskboard/internal/linkgraph"
	"taskboard/internal/models"
	"taskboard/internal/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LinkRequest is the body of POST .../roadmap/milestones/:milestoneId/tasks.
type LinkRequest struct {
	TaskID string          `json:"task_id" binding:"required"`
	Mode   models.LinkMode `json:"mode"`
}

// LinkResponse reports the edge state after a link or unlink.
type LinkResponse struct {
	MilestoneID string          `json:"milestone_id"`
	TaskID      string          `json:"task_id"`
	Mode        models.LinkMode `json:"mode"`
	Linked      bool            `json:"linked"`
}

// GetPhases handles GET .../roadmap/phases
// Phases and milestones come back ordered, with linked tasks and derived
// progress filled in.
func (h *Handler) GetPhases(c *gin.Context) {
	phases, err := loadRoadmap(h.DB, scopeOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phases": phases, "count": len(phases)})
}

// CreatePhase handles POST .../roadmap/phases
func (h *Handler) CreatePhase(c *gin.Context) {
	sc := scopeOf(c)
	var req models.PhaseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	phase := models.RoadmapPhase{
		ID:          newID(),
		WorkspaceID: sc.WorkspaceID,
		ProjectID:   sc.ProjectID,
		Description: req.Description,
	}
	var err error
	if phase.Title, phase.Status, phase.DueDate, err = roadmapFields(req.Title, req.Status, req.DueDate); err != nil {
		h.fail(c, err)
		return
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		next, err := nextOrderIndex(tx.Model(&models.RoadmapPhase{}).
			Where("workspace_id = ? AND project_id = ?", sc.WorkspaceID, sc.ProjectID))
		if err != nil {
			return err
		}
		phase.OrderIndex = next
		return tx.Create(&phase).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	phase.Milestones = []models.RoadmapMilestone{}

	h.publishRoadmap(sc, "")
	c.JSON(http.StatusCreated, phase)
}

// DeletePhase handles DELETE .../roadmap/phases/:phaseId
// Milestones of the phase and their links go with it; tasks stay.
func (h *Handler) DeletePhase(c *gin.Context) {
	sc := scopeOf(c)
	phaseID := c.Param("phaseId")
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		phase, err := findPhase(tx, sc, phaseID)
		if err != nil {
			return err
		}
		var milestoneIDs []string
		if err := tx.Model(&models.RoadmapMilestone{}).Where("phase_id = ?", phase.ID).Pluck("id", &milestoneIDs).Error; err != nil {
			return err
		}
		if len(milestoneIDs) > 0 {
			if err := tx.Where("milestone_id IN ?", milestoneIDs).Delete(&models.MilestoneTask{}).Error; err != nil {
				return err
			}
			if err := tx.Where("phase_id = ?", phase.ID).Delete(&models.RoadmapMilestone{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&phase).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.publishRoadmap(sc, "")
	c.JSON(http.StatusOK, gin.H{"message": "Phase deleted successfully", "id": phaseID})
}

// CreateMilestone handles POST .../roadmap/phases/:phaseId/milestones
func (h *Handler) CreateMilestone(c *gin.Context) {
	sc := scopeOf(c)
	var req models.MilestoneInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	m := models.RoadmapMilestone{ID: newID(), Description: req.Description}
	var err error
	if m.Title, m.Status, m.DueDate, err = roadmapFields(req.Title, req.Status, req.DueDate); err != nil {
		h.fail(c, err)
		return
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		phase, err := findPhase(tx, sc, c.Param("phaseId"))
		if err != nil {
			return err
		}
		next, err := nextOrderIndex(tx.Model(&models.RoadmapMilestone{}).Where("phase_id = ?", phase.ID))
		if err != nil {
			return err
		}
		m.PhaseID = phase.ID
		m.OrderIndex = next
		return tx.Create(&m).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	m.LinkedTasks = []models.Task{}

	h.publishRoadmap(sc, m.ID)
	c.JSON(http.StatusCreated, m)
}

// DeleteMilestone handles DELETE .../roadmap/milestones/:milestoneId
// Only the milestone and its links are removed.
func (h *Handler) DeleteMilestone(c *gin.Context) {
	sc := scopeOf(c)
	milestoneID := c.Param("milestoneId")
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		m, err := findMilestone(tx, sc, milestoneID)
		if err != nil {
			return err
		}
		if err := tx.Where("milestone_id = ?", m.ID).Delete(&models.MilestoneTask{}).Error; err != nil {
			return err
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.publishRoadmap(sc, milestoneID)
	c.JSON(http.StatusOK, gin.H{"message": "Milestone deleted successfully", "id": milestoneID})
}

// LinkTask handles POST .../roadmap/milestones/:milestoneId/tasks
// Linking an already linked task and unlinking an unlinked one both succeed.
func (h *Handler) LinkTask(c *gin.Context) {
	sc := scopeOf(c)
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if req.Mode == "" {
		req.Mode = models.LinkModeLink
	}
	if req.Mode != models.LinkModeLink && req.Mode != models.LinkModeUnlink {
		h.fail(c, fmt.Errorf("%w: mode must be link or unlink", models.ErrValidation))
		return
	}

	resp := LinkResponse{MilestoneID: c.Param("milestoneId"), TaskID: req.TaskID, Mode: req.Mode}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := findMilestone(tx, sc, resp.MilestoneID); err != nil {
			return err
		}
		if req.Mode == models.LinkModeUnlink {
			return tx.Where("milestone_id = ? AND task_id = ?", resp.MilestoneID, req.TaskID).
				Delete(&models.MilestoneTask{}).Error
		}
		var task models.Task
		if err := tx.Where("id = ? AND workspace_id = ? AND project_id = ?", req.TaskID, sc.WorkspaceID, sc.ProjectID).
			First(&task).Error; err != nil {
			return notFound(err, "task")
		}
		edge := models.MilestoneTask{MilestoneID: resp.MilestoneID, TaskID: task.ID}
		return tx.Where("milestone_id = ? AND task_id = ?", edge.MilestoneID, edge.TaskID).
			FirstOrCreate(&edge).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	resp.Linked = req.Mode == models.LinkModeLink

	h.publish(realtime.Event{
		Type: realtime.EventMilestoneLinked, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		MilestoneID: resp.MilestoneID, TaskID: resp.TaskID, ActorID: sc.UserID,
	})
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) publishRoadmap(sc projectScope, milestoneID string) {
	h.publish(realtime.Event{
		Type: realtime.EventRoadmapChanged, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		MilestoneID: milestoneID, ActorID: sc.UserID,
	})
}

func roadmapFields(title string, status models.PhaseStatus, due string) (string, models.PhaseStatus, string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", "", fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if status == "" {
		status = models.PhasePlanned
	}
	if !status.Valid() {
		return "", "", "", fmt.Errorf("%w: invalid status %q", models.ErrValidation, status)
	}
	if due != "" {
		d, ok := models.ParseDate(due)
		if !ok {
			return "", "", "", fmt.Errorf("%w: invalid due date %q", models.ErrValidation, due)
		}
		due = d
	}
	return title, status, due, nil
}

func findPhase(db *gorm.DB, sc projectScope, id string) (models.RoadmapPhase, error) {
	var p models.RoadmapPhase
	err := db.Where("id = ? AND workspace_id = ? AND project_id = ?", id, sc.WorkspaceID, sc.ProjectID).First(&p).Error
	return p, notFound(err, "phase")
}

func findMilestone(db *gorm.DB, sc projectScope, id string) (models.RoadmapMilestone, error) {
	var m models.RoadmapMilestone
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return m, notFound(err, "milestone")
	}
	if _, err := findPhase(db, sc, m.PhaseID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return m, fmt.Errorf("milestone %w", models.ErrNotFound)
		}
		return m, err
	}
	return m, nil
}

// loadRoadmap reads the phase tree of a project and resolves each
// milestone's links in insertion order.
func loadRoadmap(db *gorm.DB, sc projectScope) ([]models.RoadmapPhase, error) {
	phases := []models.RoadmapPhase{}
	err := db.Where("workspace_id = ? AND project_id = ?", sc.WorkspaceID, sc.ProjectID).
		Order("order_index, created_at").
		Preload("Milestones", func(tx *gorm.DB) *gorm.DB { return tx.Order("order_index, created_at") }).
		Find(&phases).Error
	if err != nil {
		return nil, err
	}

	var milestoneIDs []string
	for _, p := range phases {
		for _, m := range p.Milestones {
			milestoneIDs = append(milestoneIDs, m.ID)
		}
	}
	edges := map[string][]string{}
	tasks := map[string]models.Task{}
	if len(milestoneIDs) > 0 {
		var rows []models.MilestoneTask
		if err := db.Where("milestone_id IN ?", milestoneIDs).Order("id").Find(&rows).Error; err != nil {
			return nil, err
		}
		var taskIDs []string
		for _, r := range rows {
			edges[r.MilestoneID] = append(edges[r.MilestoneID], r.TaskID)
			taskIDs = append(taskIDs, r.TaskID)
		}
		if len(taskIDs) > 0 {
			var linked []models.Task
			if err := db.Where("id IN ? AND workspace_id = ?", taskIDs, sc.WorkspaceID).Find(&linked).Error; err != nil {
				return nil, err
			}
			for _, t := range linked {
				tasks[t.ID] = t
			}
		}
	}

	for i := range phases {
		seen := map[string]bool{}
		var all []models.Task
		for j := range phases[i].Milestones {
			m := &phases[i].Milestones[j]
			m.LinkedTasks = []models.Task{}
			for _, id := range edges[m.ID] {
				t, ok := tasks[id]
				if !ok {
					continue
				}
				m.LinkedTasks = append(m.LinkedTasks, t)
				if !seen[id] {
					seen[id] = true
					all = append(all, t)
				}
			}
			m.Progress = linkgraph.Progress(m.LinkedTasks)
		}
		if phases[i].Milestones == nil {
			phases[i].Milestones = []models.RoadmapMilestone{}
		}
		phases[i].Progress = linkgraph.Progress(all)
	}
	return phases, nil
}
