package handlers

import (
	"fmt"
	"net/http"
	"time"

	"taskboard/internal/lanes"
	"taskboard/internal/models"
	"taskboard/internal/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MoveTaskRequest is the body of PATCH .../tasks/:id/move.
type MoveTaskRequest struct {
	Status     models.TaskStatus `json:"status" binding:"required"`
	OrderIndex *int              `json:"order_index" binding:"required"`
	Version    int               `json:"version"`
}

// GetTasks handles GET .../tasks
// Returns the project's tasks in board order. Optional query param: status.
func (h *Handler) GetTasks(c *gin.Context) {
	sc := scopeOf(c)
	query := h.DB.Where("workspace_id = ? AND project_id = ?", sc.WorkspaceID, sc.ProjectID)
	if s := models.TaskStatus(c.Query("status")); s != "" {
		if !s.Valid() {
			h.fail(c, fmt.Errorf("%w: invalid status %q", models.ErrValidation, s))
			return
		}
		query = query.Where("status = ?", s)
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		h.fail(c, err)
		return
	}
	ordered := lanes.Build(tasks).Tasks()
	c.JSON(http.StatusOK, gin.H{
		"tasks": ordered,
		"count": len(ordered),
	})
}

// GetTaskByID handles GET .../tasks/:id
func (h *Handler) GetTaskByID(c *gin.Context) {
	task, err := findTask(h.DB, scopeOf(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CreateTask handles POST .../tasks
// The task is appended to the end of its lane.
func (h *Handler) CreateTask(c *gin.Context) {
	sc := scopeOf(c)
	var req models.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if err := req.Normalize(); err != nil {
		h.fail(c, err)
		return
	}

	task := models.Task{
		ID:           newID(),
		WorkspaceID:  sc.WorkspaceID,
		ProjectID:    sc.ProjectID,
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		AssigneeID:   req.AssigneeID,
		ContextLinks: req.ContextLinks,
		AIGenerated:  req.AIGenerated,
		Effort:       req.Effort,
		Version:      1,
		CreatedBy:    sc.UserID,
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		next, err := nextOrderIndex(tx.Model(&models.Task{}).
			Where("workspace_id = ? AND project_id = ? AND status = ?", sc.WorkspaceID, sc.ProjectID, task.Status))
		if err != nil {
			return err
		}
		task.OrderIndex = next
		return tx.Create(&task).Error
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.publish(realtime.Event{
		Type: realtime.EventTaskCreated, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		TaskID: task.ID, ActorID: sc.UserID, Version: task.Version,
	})
	c.JSON(http.StatusCreated, task)
}

// UpdateTask handles PUT .../tasks/:id
// A stale version is rejected with 409. A status change moves the task to the
// end of its new lane and closes the gap in the old one.
func (h *Handler) UpdateTask(c *gin.Context) {
	sc := scopeOf(c)
	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindFailed(c, err)
		return
	}
	if err := patch.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	var task models.Task
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = findTask(tx, sc, c.Param("id"))
		if err != nil {
			return err
		}
		if err := checkVersion(task, patch.Version); err != nil {
			return err
		}
		if patch.Status != nil && *patch.Status != task.Status {
			view, err := laneView(tx, sc, task.Status, *patch.Status)
			if err != nil {
				return err
			}
			m := lanes.Move{
				TaskID:    task.ID,
				From:      task.Status,
				To:        *patch.Status,
				FromIndex: view.IndexOf(task.Status, task.ID),
				ToIndex:   len(view.Lane(*patch.Status)),
			}
			next, changed, err := lanes.Relocate(view, m)
			if err != nil {
				return err
			}
			if err := reindex(tx, changed, task.ID); err != nil {
				return err
			}
			task.Status, task.OrderIndex, _ = next.Find(task.ID)
		}
		patch.Apply(&task)
		return saveVersioned(tx, &task)
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.publish(realtime.Event{
		Type: realtime.EventTaskUpdated, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		TaskID: task.ID, ActorID: sc.UserID, Version: task.Version,
	})
	c.JSON(http.StatusOK, task)
}

// MoveTask handles PATCH .../tasks/:id/move
// The task is placed at order_index of the target lane and both lanes are
// renumbered densely in the same transaction.
func (h *Handler) MoveTask(c *gin.Context) {
	sc := scopeOf(c)
	var req MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if !req.Status.Valid() {
		h.fail(c, fmt.Errorf("%w: invalid status %q", models.ErrValidation, req.Status))
		return
	}

	var ack models.MoveAck
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		task, err := findTask(tx, sc, c.Param("id"))
		if err != nil {
			return err
		}
		if err := checkVersion(task, req.Version); err != nil {
			return err
		}
		view, err := laneView(tx, sc, task.Status, req.Status)
		if err != nil {
			return err
		}
		from := view.IndexOf(task.Status, task.ID)
		if from < 0 {
			return fmt.Errorf("%w: task %s has status %q", models.ErrValidation, task.ID, task.Status)
		}
		next, changed, err := lanes.Relocate(view, lanes.Move{
			TaskID: task.ID, From: task.Status, To: req.Status, FromIndex: from, ToIndex: *req.OrderIndex,
		})
		if err != nil {
			return err
		}
		ack = models.MoveAck{TaskID: task.ID, Version: task.Version}
		if len(changed) == 0 {
			return nil
		}
		if err := reindex(tx, changed, task.ID); err != nil {
			return err
		}
		task.Status, task.OrderIndex, _ = next.Find(task.ID)
		if err := saveVersioned(tx, &task); err != nil {
			return err
		}
		ack.Version = task.Version
		ack.Reindexed = len(changed)
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.publish(realtime.Event{
		Type: realtime.EventTaskMoved, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		TaskID: ack.TaskID, ActorID: sc.UserID, Version: ack.Version,
	})
	c.JSON(http.StatusOK, ack)
}

// DeleteTask handles DELETE .../tasks/:id
// Milestone links and comments go with the task, and its lane is renumbered.
func (h *Handler) DeleteTask(c *gin.Context) {
	sc := scopeOf(c)
	taskID := c.Param("id")
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		task, err := findTask(tx, sc, taskID)
		if err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.MilestoneTask{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskComment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&task).Error; err != nil {
			return err
		}
		view, err := laneView(tx, sc, task.Status)
		if err != nil {
			return err
		}
		_, changed := lanes.Normalize(view)
		return reindex(tx, changed, "")
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.publish(realtime.Event{
		Type: realtime.EventTaskDeleted, WorkspaceID: sc.WorkspaceID, ProjectID: sc.ProjectID,
		TaskID: taskID, ActorID: sc.UserID,
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
		"id":      taskID,
	})
}

// nextOrderIndex returns one past the highest order_index matched by q, or 0
// when q matches nothing.
func nextOrderIndex(q *gorm.DB) (int, error) {
	var next int
	err := q.Select("COALESCE(MAX(order_index), -1) + 1").Scan(&next).Error
	return next, err
}

func findTask(db *gorm.DB, sc projectScope, id string) (models.Task, error) {
	var task models.Task
	err := db.Where("id = ? AND workspace_id = ? AND project_id = ?", id, sc.WorkspaceID, sc.ProjectID).First(&task).Error
	return task, notFound(err, "task")
}

func laneView(tx *gorm.DB, sc projectScope, statuses ...models.TaskStatus) (lanes.View, error) {
	var tasks []models.Task
	err := tx.Where("workspace_id = ? AND project_id = ? AND status IN ?", sc.WorkspaceID, sc.ProjectID, statuses).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return lanes.Build(tasks), nil
}

// checkVersion rejects writes carrying a version other than the stored one.
// A zero version skips the check.
func checkVersion(task models.Task, version int) error {
	if version != 0 && version != task.Version {
		return fmt.Errorf("task %s is at version %d, not %d: %w", task.ID, task.Version, version, models.ErrConflict)
	}
	return nil
}

// reindex writes the lane positions of changed tasks, skipping skipID.
func reindex(tx *gorm.DB, changed []models.Task, skipID string) error {
	for _, t := range changed {
		if t.ID == skipID {
			continue
		}
		err := tx.Model(&models.Task{}).Where("id = ?", t.ID).
			Updates(map[string]any{"status": t.Status, "order_index": t.OrderIndex}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// saveVersioned writes every column of task when the stored version is still
// the one it was loaded with, and bumps the version.
func saveVersioned(tx *gorm.DB, task *models.Task) error {
	loaded := task.Version
	task.Version = loaded + 1
	task.UpdatedAt = time.Now()
	res := tx.Model(task).Where("version = ?", loaded).Select("*").Omit("id", "created_at").Updates(task)
	if res.Error != nil {
		task.Version = loaded
		return res.Error
	}
	if res.RowsAffected == 0 {
		task.Version = loaded
		return fmt.Errorf("task %s changed concurrently: %w", task.ID, models.ErrConflict)
	}
	return nil
}
