package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/worknotify/internal/model"
)

// treeConcurrency caps parallel requests while loading the hierarchy.
const treeConcurrency = 8

func idParam(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}

// Workspaces lists the workspaces visible to the caller.
func (c *Client) Workspaces(ctx context.Context) ([]model.Workspace, error) {
	var out []model.Workspace
	if err := c.do(ctx, http.MethodGet, "/workspaces", nil, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	return out, nil
}

// Boards lists the boards of a workspace.
func (c *Client) Boards(ctx context.Context, workspaceID int64) ([]model.Board, error) {
	var out []model.Board
	if err := c.do(ctx, http.MethodGet, "/boards/workspace/{id}", idParam(workspaceID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("listing boards of workspace %d: %w", workspaceID, err)
	}
	return out, nil
}

// Groups lists the groups of a board.
func (c *Client) Groups(ctx context.Context, boardID int64) ([]model.Group, error) {
	var out []model.Group
	if err := c.do(ctx, http.MethodGet, "/groups/board/{id}", idParam(boardID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("listing groups of board %d: %w", boardID, err)
	}
	return out, nil
}

// Tasks lists the tasks of a group.
func (c *Client) Tasks(ctx context.Context, groupID int64) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/group/{id}", idParam(groupID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("listing tasks of group %d: %w", groupID, err)
	}
	return out, nil
}

// LoadTree fetches workspaces with their boards only. Groups and tasks are
// loaded per board with LoadBoard.
func (c *Client) LoadTree(ctx context.Context) ([]model.Workspace, error) {
	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(treeConcurrency)
	for i := range workspaces {
		ws := &workspaces[i]
		g.Go(func() error {
			boards, err := c.Boards(gctx, ws.ID)
			if err != nil {
				return err
			}
			ws.Boards = boards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return workspaces, nil
}

// LoadBoard fetches a board's groups and every group's tasks.
func (c *Client) LoadBoard(ctx context.Context, boardID int64) ([]model.Group, error) {
	groups, err := c.Groups(ctx, boardID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(treeConcurrency)
	for i := range groups {
		grp := &groups[i]
		g.Go(func() error {
			tasks, err := c.Tasks(gctx, grp.ID)
			if err != nil {
				return err
			}
			grp.Tasks = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}
