package simulation

import "github.com/nerrad567/device-orchestra/internal/device"

// Type names registered by Register.
const (
	TypeGeneric     = "generic"
	TypeCamera      = "generic-camera"
	TypeMotor       = "generic-motor"
	TypeSensor      = "generic-sensor"
	TypeSimulated   = "simulated"
	TypeThermometer = "virtual-thermometer"
)

// Register adds every simulated device type to f.
func Register(f *device.Factory) {
	f.Register(TypeGeneric, NewConstructor(TypeGeneric, KindGeneric))
	f.Register(TypeCamera, NewConstructor(TypeCamera, KindCamera))
	f.Register(TypeMotor, NewConstructor(TypeMotor, KindMotor))
	f.Register(TypeSensor, NewConstructor(TypeSensor, KindSensor))
	f.Register(TypeSimulated, NewConstructor(TypeSimulated, KindGeneric))
	f.Register(TypeThermometer, NewThermometer)
}
