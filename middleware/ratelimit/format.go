// utilitário pequeno para formatação consistente de valores numéricos em headers/corpos.
// Padroniza a formatação do float (strconv.FormatFloat), sem notação científica
// em valores comuns.

package ratelimit

import (
	"math"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// roundMinutes converte para minutos com duas casas decimais.
func roundMinutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*100) / 100
}
