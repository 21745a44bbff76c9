package triggers

import (
	"fmt"

	"github.com/aristath/playbook/internal/domain"
)

// Bilingual reason strings rendered at fire time and stored on the alert.

func priceLevelReason(dir domain.Direction, price, level float64) (string, string) {
	if dir == domain.DirectionShort {
		return fmt.Sprintf("Close %.2f reached target level %.2f (below)", price, level),
			fmt.Sprintf("收盘价 %.2f 跌破目标价位 %.2f", price, level)
	}
	return fmt.Sprintf("Close %.2f reached target level %.2f (above)", price, level),
		fmt.Sprintf("收盘价 %.2f 突破目标价位 %.2f", price, level)
}

func drawdownReason(actualPct, limitPct, high, current float64) (string, string) {
	return fmt.Sprintf("Drawdown %.1f%% from window high %.2f to %.2f breached the %.1f%% limit",
			actualPct, high, current, limitPct),
		fmt.Sprintf("自区间高点 %.2f 回撤 %.1f%% 至 %.2f，超过 %.1f%% 上限",
			high, actualPct, current, limitPct)
}

func maCrossReason(dir domain.Direction, short, long int) (string, string) {
	if dir == domain.DirectionShort {
		return fmt.Sprintf("MA%d crossed below MA%d", short, long),
			fmt.Sprintf("%d日均线下穿%d日均线", short, long)
	}
	return fmt.Sprintf("MA%d crossed above MA%d", short, long),
		fmt.Sprintf("%d日均线上穿%d日均线", short, long)
}

func timeStopReason(days int, armedSince string) (string, string) {
	return fmt.Sprintf("Time stop: %d trading days elapsed since %s", days, armedSince),
		fmt.Sprintf("时间止损：自 %s 起已过 %d 个交易日", armedSince, days)
}

func manualEventReason(eventType, note string) (string, string) {
	en := fmt.Sprintf("Manual event: %s", eventType)
	cn := fmt.Sprintf("人工事件：%s", eventType)
	if note != "" {
		en += " (" + note + ")"
		cn += "（" + note + "）"
	}
	return en, cn
}
