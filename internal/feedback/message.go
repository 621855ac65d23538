package feedback

import (
	"fmt"
	"strconv"
	"time"

	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

var gazeAreaText = map[types.Gaze]string{
	types.GazeCenter: "正前方",
	types.GazeLeft:   "左侧",
	types.GazeRight:  "右侧",
	types.GazeDown:   "下方",
}

var headPoseText = map[types.HeadPose]string{
	types.HeadNod:   "点头",
	types.HeadShake: "摇头",
	types.HeadStill: "静止",
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64)
}

// Message renders the text for an event. It depends only on its arguments.
func Message(et types.EventType, p types.Payload, v profile.Verbosity) string {
	switch pl := p.(type) {
	case types.DistractedPayload:
		switch v {
		case profile.VerbosityBrief:
			return "请注意前方！"
		case profile.VerbosityUrgent:
			return fmt.Sprintf("警告！检测到您已分神 %s 秒！请立即注视前方道路！", seconds(pl.Duration))
		default:
			return fmt.Sprintf("请保持注意力集中在驾驶上。检测到您已分神 %s 秒。", seconds(pl.Duration))
		}
	case types.EyesClosedPayload:
		switch v {
		case profile.VerbosityBrief:
			return "请睁眼！"
		case profile.VerbosityUrgent:
			return fmt.Sprintf("警告！检测到您闭眼 %s 秒！请立即保持清醒！", seconds(pl.Duration))
		default:
			return fmt.Sprintf("检测到您闭眼 %s 秒，请保持清醒。", seconds(pl.Duration))
		}
	case types.WarningPayload:
		return urgentWrap(warningText(et, v), v)
	case types.CommandPayload:
		return urgentWrap(commandText(et, pl, v), v)
	case types.PermissionDeniedPayload:
		if v == profile.VerbosityBrief {
			return "权限不足。"
		}
		return urgentWrap(fmt.Sprintf("抱歉，您没有权限执行 '%s'。", pl.ActionTag), v)
	case types.InfoPayload:
		return urgentWrap(infoText(pl), v)
	}
	return fmt.Sprintf("收到事件：%s", et)
}

func urgentWrap(s string, v profile.Verbosity) string {
	if v == profile.VerbosityUrgent {
		return "请立即注意！" + s
	}
	return s
}

func warningText(et types.EventType, v profile.Verbosity) string {
	switch et {
	case types.EventWarningConfirmed:
		return "安全已确认"
	case types.EventWarningRejected:
		if v == profile.VerbosityBrief {
			return "警告未解除"
		}
		return "警告未解除，请注意前方道路。"
	default:
		if v == profile.VerbosityBrief {
			return "请回应警告！"
		}
		return "警告未得到回应，请立即注视前方道路！"
	}
}

func commandText(et types.EventType, c types.CommandPayload, v profile.Verbosity) string {
	if v == profile.VerbosityBrief && c.Command != "" {
		if et == types.EventCommandFailure {
			return fmt.Sprintf("%s，失败。", c.Command)
		}
		return fmt.Sprintf("%s，已完成。", c.Command)
	}
	// scene outcomes carry their own fixed phrase
	if c.Message != "" {
		return c.Message
	}
	if et == types.EventCommandFailure {
		reason := c.Reason
		if reason == "" {
			reason = "未知"
		}
		return fmt.Sprintf("抱歉，指令 '%s' 执行失败。原因是：%s。", c.Command, reason)
	}
	return fmt.Sprintf("指令 '%s' 已成功执行。", c.Command)
}

func infoText(p types.InfoPayload) string {
	switch {
	case p.Message != "":
		return p.Message
	case p.GazeArea != "":
		return "检测到目光区域在" + describeGaze(p.GazeArea)
	case p.HeadPose != "":
		return "检测到头部姿态" + describePose(p.HeadPose)
	default:
		return "收到一条新信息。"
	}
}

func describeGaze(g types.Gaze) string {
	if s, ok := gazeAreaText[g]; ok {
		return s
	}
	return string(g)
}

func describePose(p types.HeadPose) string {
	if s, ok := headPoseText[p]; ok {
		return s
	}
	return string(p)
}

// passiveDescription is the spoken fallback for passively observed
// conditions; empty when the payload carries none.
func passiveDescription(p types.Payload) string {
	info, ok := p.(types.InfoPayload)
	if !ok {
		return ""
	}
	switch {
	case info.GazeArea != "":
		return "目光" + describeGaze(info.GazeArea)
	case info.HeadPose != "":
		return "头部" + describePose(info.HeadPose)
	}
	return ""
}
