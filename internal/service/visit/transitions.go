package visit

import (
	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// relation 操作人与看房的关系，同时决定反馈写入的渠道
type relation string

const (
	relationManager  relation = models.FeedbackChannelManager
	relationUser     relation = models.FeedbackChannelUser
	relationEmployee relation = models.FeedbackChannelEmployee
)

// openStatuses 非终态
var openStatuses = []string{
	models.VisitStatusPendingApproval,
	models.VisitStatusConfirmed,
	models.VisitStatusDelayed,
	models.VisitStatusCompleted,
}

// transitionTable 关系 -> 目标状态 -> 允许的当前状态
// CONFIRMED 只能通过指派员工进入，BOOKED 只能由预订流程写入，二者不出现在表中
var transitionTable = map[relation]map[string][]string{
	relationManager: {
		models.VisitStatusCancelled: openStatuses,
		models.VisitStatusDelayed:   {models.VisitStatusConfirmed},
		models.VisitStatusCompleted: {models.VisitStatusConfirmed, models.VisitStatusDelayed},
	},
	relationUser: {
		models.VisitStatusCancelled: openStatuses,
	},
	relationEmployee: {
		models.VisitStatusCancelled: {models.VisitStatusConfirmed, models.VisitStatusDelayed},
		models.VisitStatusCompleted: {models.VisitStatusConfirmed, models.VisitStatusDelayed},
		models.VisitStatusDelayed:   {models.VisitStatusConfirmed},
	},
}

// assignableStatuses 可以指派（或改派）员工的状态
var assignableStatuses = []string{
	models.VisitStatusPendingApproval,
	models.VisitStatusConfirmed,
	models.VisitStatusDelayed,
}

// resolveRelation 解析操作人与看房的关系，无关人员返回 false
func resolveRelation(actor models.Actor, visit *models.Visit) (relation, bool) {
	switch {
	case actor.IsAdmin():
		return relationManager, true
	case actor.Role == models.RoleManager && visit.ManagerID != nil && *visit.ManagerID == actor.UserID:
		return relationManager, true
	case visit.UserID == actor.UserID:
		return relationUser, true
	case actor.Role == models.RoleEmployee && visit.EmployeeID != nil && *visit.EmployeeID == actor.UserID:
		return relationEmployee, true
	}
	return "", false
}

// checkTransition 校验状态变更
// 终态或当前状态不在允许列表返回 KindInvalidState；关系无权进入目标状态返回 KindForbidden
func checkTransition(rel relation, from, to string) error {
	if !models.IsValidVisitStatus(to) {
		return errors.ErrInvalidParams.WithMessage("未知的看房状态: " + to)
	}
	if models.IsTerminalVisitStatus(from) {
		return errors.ErrVisitStatusError.WithMessage("看房已结束，状态为 " + from)
	}

	sources, ok := transitionTable[rel][to]
	if !ok {
		return errors.ErrVisitForbidden
	}
	if !utils.Contains(sources, from) {
		return errors.ErrVisitStatusError.WithMessage("看房状态 " + from + " 不能变更为 " + to)
	}
	return nil
}

// channelForRole 创建看房时初始反馈所在渠道
func channelForRole(role string) string {
	switch role {
	case models.RoleAdmin, models.RoleManager:
		return models.FeedbackChannelManager
	case models.RoleEmployee:
		return models.FeedbackChannelEmployee
	}
	return models.FeedbackChannelUser
}
