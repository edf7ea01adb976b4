package service

import (
	"math"

	"buddy_sos/model"
)

// earthRadiusKm 地球半径
const earthRadiusKm = 6371.0

// 评分常量：分值越低排名越靠前
const (
	scoreAvailable = 0.0
	scoreBusy      = 100.0
	scoreOffline   = 200.0

	// 距离封顶 500km；未知距离取中间值 250（不能当作"很近"）
	distanceCapKm    = 500.0
	unknownDistScore = 250.0
	trustStepScore   = 10.0
	maxTrustLevel    = 5
)

// HaversineKm 两个经纬度点之间的大圆距离（公里）
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceKm 带缺失坐标处理的距离：任一侧没有位置返回 nil（未知，而不是 0）
func DistanceKm(lat1, lon1, lat2, lon2 *float64) *float64 {
	if lat1 == nil || lon1 == nil || lat2 == nil || lon2 == nil {
		return nil
	}
	d := HaversineKm(*lat1, *lon1, *lat2, *lon2)
	return &d
}

// 三项相加，低分优先：
//   - 可用性：AVAILABLE=0 / BUSY=100 / OFFLINE=200（OFFLINE 在上游已被过滤，这里兜底）
//   - 信任：(5 - trust) * 10，trust 5 贡献 0
//   - 距离：已知取 min(d, 500)，未知取 250
func rankScore(presence model.PresenceStatus, trustLevel int, distKm *float64) float64 {
	var availScore float64
	switch presence {
	case model.PresenceAvailable:
		availScore = scoreAvailable
	case model.PresenceBusy:
		availScore = scoreBusy
	default:
		availScore = scoreOffline
	}

	trustScore := float64(maxTrustLevel-trustLevel) * trustStepScore

	distScore := unknownDistScore
	if distKm != nil {
		distScore = math.Min(*distKm, distanceCapKm)
	}

	return availScore + trustScore + distScore
}
