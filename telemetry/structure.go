package telemetry

import (
	"fmt"
	"math"
)

// periscopeOffset is the longitudinal distance from the docking port to the
// periscope along the flight direction, in meters.
const periscopeOffset = 3.471

// approachConeHalfAngle is the half-opening angle of the approach corridor
const approachConeHalfAngle = 10 * math.Pi / 180

// Structure applies the known sensor and coordinate-system fixes to a
// freshly parsed series and appends the derived value sets. It must be
// called exactly once, before phase detection.
func Structure(series *FlightSeries) error {
	// Handle naming bug in the logger
	series.renameColumn("Rot. Rate.Z [deg/s]", "Rot. Rate.z [deg/s]")

	// Coordinate system transformation from OrbVLCS to IssTPLCS: swap the
	// x and z axes of both hand controllers, then flip the translational x/z
	// directions.
	series.renameColumn("THC.x", "THC.x__swap")
	series.renameColumn("THC.z", "THC.x")
	series.renameColumn("THC.x__swap", "THC.z")
	series.renameColumn("RHC.x", "RHC.x__swap")
	series.renameColumn("RHC.z", "RHC.x")
	series.renameColumn("RHC.x__swap", "RHC.z")

	for _, name := range []string{"THC.x", "THC.z"} {
		column := series.Column(name)
		for i := range column {
			column[i] = -column[i]
		}
	}

	for _, required := range []string{
		ColSimTime, ColCOGPosX, ColCOGPosY, ColCOGPosZ,
		ColCOGVelX, ColCOGVelY, ColCOGVelZ,
		ColPortPosX, ColPortPosY, ColPortPosZ,
	} {
		if !series.HasColumn(required) {
			return fmt.Errorf("required column %q missing from flight log", required)
		}
	}

	n := series.Len()

	lateralOffset := make([]float64, n)
	lateralVelocity := make([]float64, n)
	idealApproachVel := make([]float64, n)
	angleToPort := make([]float64, n)
	approachCone := make([]float64, n)
	maxRotAngle := make([]float64, n)
	maxRotVelocity := make([]float64, n)

	for i := 0; i < n; i++ {
		posX := series.Value(ColCOGPosX, i)
		posY := series.Value(ColCOGPosY, i)
		posZ := series.Value(ColCOGPosZ, i)
		portX := series.Value(ColPortPosX, i)
		portY := series.Value(ColPortPosY, i)
		portZ := series.Value(ColPortPosZ, i)

		// Lateral offset and velocity off the x-axis
		lateralOffset[i] = math.Hypot(posY, posZ)
		lateralVelocity[i] = math.Hypot(series.Value(ColCOGVelY, i), series.Value(ColCOGVelZ, i))

		// Ideal approach velocity profile, capped inside the final corridor
		idealApproachVel[i] = -posX / 200
		if posX < 20 {
			idealApproachVel[i] = -0.1
		}

		// Angle from the vessel's line of sight to the docking port
		angleToPort[i] = angleToDockingPort(
			[3]float64{portX + periscopeOffset, portY, portZ},
			[3]float64{posX + periscopeOffset, posY, posZ},
		)

		approachCone[i] = posX * math.Tan(approachConeHalfAngle)

		// Rotational limits only apply between port contact range and the
		// final corridor entry
		if portX > 0 && posX < 20 {
			maxRotAngle[i] = 1.5
			maxRotVelocity[i] = 0.15
		} else {
			maxRotAngle[i] = math.NaN()
			maxRotVelocity[i] = math.NaN()
		}
	}

	derived := map[string][]float64{
		ColLateralOffset:  lateralOffset,
		ColLateralVel:     lateralVelocity,
		ColIdealApprVel:   idealApproachVel,
		ColAngleToPort:    angleToPort,
		ColApproachCone:   approachCone,
		ColMaxRotAngle:    maxRotAngle,
		ColMaxRotVelocity: maxRotVelocity,
	}
	for _, name := range []string{
		ColLateralOffset, ColLateralVel, ColIdealApprVel,
		ColAngleToPort, ColApproachCone, ColMaxRotAngle, ColMaxRotVelocity,
	} {
		if err := series.AddColumn(name, derived[name]); err != nil {
			return err
		}
	}

	return nil
}

// angleToDockingPort calculates the angle in degrees between the direction
// vector from back to front and the vector from the front to the origin.
// NaN when either vector cannot be normalized.
func angleToDockingPort(front, back [3]float64) float64 {
	var direction, toOrigin [3]float64
	for axis := 0; axis < 3; axis++ {
		direction[axis] = front[axis] - back[axis]
		toOrigin[axis] = -front[axis]
	}

	directionNorm := vectorNorm(direction)
	toOriginNorm := vectorNorm(toOrigin)
	if directionNorm == 0 || toOriginNorm == 0 {
		return math.NaN()
	}

	dot := 0.0
	for axis := 0; axis < 3; axis++ {
		dot += (direction[axis] / directionNorm) * (toOrigin[axis] / toOriginNorm)
	}

	// Guard acos against rounding outside [-1, 1]
	dot = math.Max(-1, math.Min(1, dot))

	return math.Acos(dot) * 180 / math.Pi
}

func vectorNorm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
